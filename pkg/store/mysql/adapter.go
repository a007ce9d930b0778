package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/observability/logger"
)

// Adapter provides a pooled MySQL connection for change-tracked contexts.
type Adapter struct {
	db     *sql.DB
	logger logger.Logger
}

// Config holds MySQL configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewAdapter opens a MySQL pool and verifies it with a ping. The URL is a driver DSN
// (user:pass@tcp(host:3306)/db); parseTime is forced on so DATETIME columns scan into time.Time.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	dsn, err := driver.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	dsn.ParseTime = true

	connector, err := driver.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	log.Info("MySQL connection established",
		"database", dsn.DBName,
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return NewAdapterFromDB(db, log), nil
}

// NewAdapterFromDB wraps a pool opened elsewhere. Close closes it.
func NewAdapterFromDB(db *sql.DB, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{db: db, logger: log}
}

func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Dialect returns the statement dialect for MySQL.
func (a *Adapter) Dialect() dbcontext.Dialect {
	return dbcontext.MySQL
}

// Ping performs a basic connectivity check to verify the service is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// HealthCheck verifies the component is operational and can perform its intended function.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(hcCtx); err != nil {
		a.logger.Error("MySQL health check failed", "error", err)
		return fmt.Errorf("mysql health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	a.logger.Info("closing MySQL connection")
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close MySQL connection", "error", err)
		return fmt.Errorf("failed to close mysql connection: %w", err)
	}
	return nil
}
