package config

import "fmt"

// APIConfig controls the admin HTTP API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token guards the API with a bearer token. Empty means open access,
	// for deployments that front the service with their own auth.
	Token string `json:"token"`
}

// SetDefaults applies the standard listen address.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Validate checks the listen address is set when the API is enabled.
func (c APIConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("api addr is required")
	}
	return nil
}
