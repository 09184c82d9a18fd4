package wiring

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings.
type Config struct {
	Environment string `yaml:"environment" validate:"required,oneof=development production test"`
	LogLevel    string `yaml:"log_level" validate:"required,oneof=debug info warn error"`
	// StartupTimeout bounds Start. Zero means no bound beyond the caller's context.
	StartupTimeout time.Duration `yaml:"startup_timeout" validate:"gte=0"`
	// AllowCircularReferences enables early references for singletons.
	AllowCircularReferences bool `yaml:"allow_circular_references"`
	// AllowDefinitionOverriding lets a registration replace an existing definition.
	AllowDefinitionOverriding bool   `yaml:"allow_definition_overriding"`
	MetricsNamespace          string `yaml:"metrics_namespace"`
}

// DefaultConfig returns the settings used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		Environment:             "production",
		LogLevel:                "info",
		AllowCircularReferences: true,
		MetricsNamespace:        "wiring",
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration on top of DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
