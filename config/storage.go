package config

import "fmt"

// StorageConfig selects the durable store backend.
type StorageConfig struct {
	// Backend selects the store type: "sqlite" or "postgres".
	Backend string `json:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `json:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "routeopt.db"
	}
}

// Validate checks mandatory fields.
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("storage dsn is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %s", c.Backend)
	}
	return nil
}
