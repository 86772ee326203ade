// Package config loads the service configuration from a YAML or JSON
// file with RO_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tradedesk/routeopt/infra/engine"
	"github.com/tradedesk/routeopt/infra/livedata"
	"github.com/tradedesk/routeopt/infra/metrics"
	"github.com/tradedesk/routeopt/infra/mqtt"
)

type Config struct {
	Engine   engine.Config   `json:"engine"`
	MQTT     mqtt.Config     `json:"mqtt"`
	LiveData livedata.Config `json:"livedata"`
	Metrics  metrics.Config  `json:"metrics"`
	Storage  StorageConfig   `json:"storage"`
	Trigger  TriggerConfig   `json:"trigger"`
	API      APIConfig       `json:"api"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. RO_STORAGE__DSN.
	if err := k.Load(env.Provider("RO_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ro_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Engine.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.LiveData.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.Trigger.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Trigger.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.API.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
