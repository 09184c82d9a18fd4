package wiring

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger for cfg: JSON output in production, console
// output otherwise.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zapConfig.Level = level

	return zapConfig.Build()
}
