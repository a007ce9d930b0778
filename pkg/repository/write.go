package repository

import (
	"context"
	"fmt"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/expr"
	"github.com/nimburion/dataaccess/pkg/uow"
)

// RepositoryWrite stages mutations of T in the context of a unit of work it does not own.
// Several repositories built on the same unit of work commit together.
type RepositoryWrite[T any, ID comparable] struct {
	unit uow.UnitOfWork
	set  *dbcontext.Set[T, ID]
}

// NewRepositoryWrite creates a write repository for T. T must be registered on the unit of
// work's context.
func NewRepositoryWrite[T any, ID comparable](unit uow.UnitOfWork) (*RepositoryWrite[T, ID], error) {
	set, err := dbcontext.SetOf[T, ID](unit.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to create write repository: %w", err)
	}
	return &RepositoryWrite[T, ID]{unit: unit, set: set}, nil
}

// Add stages entity for insertion and returns it.
func (r *RepositoryWrite[T, ID]) Add(entity *T) (*T, error) {
	if err := r.set.Add(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *RepositoryWrite[T, ID]) AddRange(entities []*T) error {
	return r.set.AddRange(entities)
}

func (r *RepositoryWrite[T, ID]) Update(entity *T) error {
	return r.set.Update(entity)
}

func (r *RepositoryWrite[T, ID]) UpdateRange(entities []*T) error {
	return r.set.UpdateRange(entities)
}

func (r *RepositoryWrite[T, ID]) Remove(entity *T) error {
	return r.set.Remove(entity)
}

// RemoveWhere stages every stored entity matching where for deletion. The match is evaluated by
// the store; the deletions are only written on Commit.
func (r *RepositoryWrite[T, ID]) RemoveWhere(ctx context.Context, where expr.Expr) error {
	matches, err := r.set.Where(ctx, where)
	if err != nil {
		return fmt.Errorf("failed to select entities to remove: %w", err)
	}
	return r.set.RemoveRange(matches)
}

func (r *RepositoryWrite[T, ID]) RemoveRange(entities []*T) error {
	return r.set.RemoveRange(entities)
}

// Commit persists everything staged in the shared unit of work, not only this repository's
// mutations.
func (r *RepositoryWrite[T, ID]) Commit(ctx context.Context) bool {
	return r.unit.Commit(ctx)
}

func (r *RepositoryWrite[T, ID]) CommitAsync(ctx context.Context) <-chan bool {
	return r.unit.CommitAsync(ctx)
}
