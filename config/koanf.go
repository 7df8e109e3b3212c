package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/poiesic/cinevec/core"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CINEVEC_"

	// ConfigPathEnvVar selects the YAML config file.
	ConfigPathEnvVar = "CINEVEC_CONFIG"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"cinevec.yaml",
	"cinevec.yml",
	"/etc/cinevec/config.yaml",
}

// sections are the top-level keys env names are split on.
var sections = []string{"embedding", "index", "catalog", "concepts", "server", "reembed", "logging"}

// nested are second-level sections under index.
var nested = []string{"badger", "qdrant"}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{"server.cors_origins"}

// Load builds the configuration from defaults, an optional YAML file and
// CINEVEC_* environment variables, in increasing priority.
// An explicit path must exist; otherwise CINEVEC_CONFIG and DefaultConfigPaths are tried.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: config file %s: %v", core.ErrConfiguration, path, err)
		}
	} else {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: failed to load config file %s: %v", core.ErrConfiguration, path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal configuration: %v", core.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment names to koanf paths:
//
//	CINEVEC_EMBEDDING_API_KEY   -> embedding.api_key
//	CINEVEC_INDEX_QDRANT_HOST   -> index.qdrant.host
//	CINEVEC_SERVER_CORS_ORIGINS -> server.cors_origins
//
// Names outside the known sections are dropped, including CINEVEC_CONFIG.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	for _, section := range sections {
		rest, ok := strings.CutPrefix(key, section+"_")
		if !ok {
			continue
		}
		if section == "index" {
			for _, sub := range nested {
				if field, ok := strings.CutPrefix(rest, sub+"_"); ok {
					return section + "." + sub + "." + field
				}
			}
		}
		return section + "." + rest
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
