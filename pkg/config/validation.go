package config

import (
	"fmt"
	"strings"

	"github.com/nimburion/dataaccess/pkg/observability/logger"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := logger.ParseLogLevel(string(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logger.ParseLogFormat(string(c.Log.Format)); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}

	if c.Database.Type != "" {
		switch strings.ToLower(c.Database.Type) {
		case DatabaseTypePostgres, DatabaseTypeMySQL:
		default:
			return fmt.Errorf("unsupported database.type %q (supported: postgres, mysql)", c.Database.Type)
		}
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required when database.type is set")
		}
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Database.QueryTimeout < 0 {
		return fmt.Errorf("database.query_timeout cannot be negative")
	}

	if c.Document.URL != "" && c.Document.Database == "" {
		return fmt.Errorf("document.database is required when document.url is set")
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Namespace) == "" {
		return fmt.Errorf("metrics.namespace is required when metrics are enabled")
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
		}
	}

	return nil
}
