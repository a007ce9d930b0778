package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/dataaccess/pkg/config"
	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/observability/metrics"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
	"github.com/nimburion/dataaccess/pkg/store/mongodb"
	"github.com/nimburion/dataaccess/pkg/store/mysql"
	"github.com/nimburion/dataaccess/pkg/store/postgres"
)

// NewRelationalAdapter opens the SQL store selected by cfg.Type.
func NewRelationalAdapter(cfg config.DatabaseConfig, log logger.Logger) (RelationalAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypePostgres:
		adapter, err := postgres.NewAdapter(postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case config.DatabaseTypeMySQL:
		adapter, err := mysql.NewAdapter(mysql.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: postgres, mysql)", cfg.Type)
	}
}

// NewDocumentAdapter connects to the document store. It returns nil without error when no
// document URL is configured.
func NewDocumentAdapter(cfg config.DocumentConfig, log logger.Logger) (*mongodb.Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil
	}
	return mongodb.NewAdapter(mongodb.Config{
		URL:              cfg.URL,
		Database:         cfg.Database,
		ConnectTimeout:   cfg.ConnectTimeout,
		OperationTimeout: cfg.OperationTimeout,
	}, log)
}

// NewContext builds a change-tracked context over adapter with the tracking and timeout
// settings of cfg. Entity sets still have to be registered on it.
func NewContext(adapter RelationalAdapter, cfg config.DatabaseConfig, log logger.Logger, opts ...dbcontext.Option) *dbcontext.Context {
	base := []dbcontext.Option{
		dbcontext.WithLogger(log),
		dbcontext.WithQueryTracking(cfg.QueryTracking),
		dbcontext.WithCommandTimeout(cfg.QueryTimeout),
	}
	return dbcontext.New(adapter.DB(), adapter.Dialect(), append(base, opts...)...)
}

// NewRecorder builds the commit and document-operation recorder described by cfg and registers
// its collectors on reg. Disabled metrics yield a nil recorder, which every component accepts as
// a no-op.
func NewRecorder(cfg config.MetricsConfig, reg *metrics.Registry) (*metrics.Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if reg == nil {
		return nil, fmt.Errorf("metrics registry is required when metrics are enabled")
	}
	rec := metrics.NewRecorder(cfg.Namespace)
	for _, c := range rec.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return rec, nil
}

// NewTracerProvider installs the tracer provider described by cfg.Tracing.
func NewTracerProvider(ctx context.Context, cfg config.Config) (*tracing.TracerProvider, error) {
	return tracing.NewTracerProvider(ctx, cfg.Tracing)
}
