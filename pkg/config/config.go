package config

import (
	"time"

	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
)

// Database type constants
const (
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
)

// Config is the root configuration of the data-access layer.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// DatabaseConfig configures the relational store behind the change-tracked context.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // postgres, mysql
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	QueryTracking   bool          `mapstructure:"query_tracking"`
}

// DocumentConfig configures the MongoDB store used by document writers.
type DocumentConfig struct {
	URL              string        `mapstructure:"url"`
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Log: logger.DefaultConfig(),
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    10 * time.Second,
			QueryTracking:   true,
		},
		Document: DocumentConfig{
			ConnectTimeout:   10 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "dataaccess",
		},
		Tracing: tracing.Config{
			ServiceName: "dataaccess",
			SampleRate:  1.0,
		},
	}
}
