package observability

import (
	"strings"

	"github.com/smallbiznis/telemetra/internal/config"
)

// Config carries logging settings derived from the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	LogLevel    string
	LogFormat   string
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		LogFormat:   getenvDefault("LOG_FORMAT", "json"),
	}
}

func (c Config) Debug() bool {
	return strings.EqualFold(c.Environment, "development")
}
