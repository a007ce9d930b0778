// Package store opens the relational and document stores the data-access layer writes through.
package store

import (
	"context"
	"database/sql"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// RelationalAdapter is a pooled SQL connection a dbcontext.Context can be built on.
type RelationalAdapter interface {
	Adapter
	DB() *sql.DB
	Dialect() dbcontext.Dialect
}
