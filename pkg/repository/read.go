package repository

import (
	"context"
	"fmt"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/expr"
)

// RepositoryRead queries T through a context. With query tracking on, results are the tracked
// instances, so edits made through them are picked up by the next commit.
type RepositoryRead[T any, ID comparable] struct {
	set *dbcontext.Set[T, ID]
}

// NewRepositoryRead creates a read repository for T over dbc.
func NewRepositoryRead[T any, ID comparable](dbc *dbcontext.Context) (*RepositoryRead[T, ID], error) {
	set, err := dbcontext.SetOf[T, ID](dbc)
	if err != nil {
		return nil, fmt.Errorf("failed to create read repository: %w", err)
	}
	return &RepositoryRead[T, ID]{set: set}, nil
}

func (r *RepositoryRead[T, ID]) Find(ctx context.Context, id ID) (*T, error) {
	return r.set.Find(ctx, id)
}

func (r *RepositoryRead[T, ID]) Where(ctx context.Context, where expr.Expr) ([]*T, error) {
	return r.set.Where(ctx, where)
}

// Local evaluates where against tracked entities only.
func (r *RepositoryRead[T, ID]) Local(where expr.Expr) ([]*T, error) {
	return r.set.Local(where)
}
