package config

import (
	"log/slog"
	"strings"
)

// ObservabilityConfig groups logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// MetricsEnabled mounts the Prometheus /metrics endpoint.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Sanitize normalises level and format names.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" {
		c.LogFormat = "json"
	}
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *ObservabilityConfig) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
