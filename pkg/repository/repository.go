package repository

import (
	"context"

	"github.com/nimburion/dataaccess/pkg/expr"
	"github.com/nimburion/dataaccess/pkg/uow"
)

// Write stages mutations of T in a shared unit of work. Staging never touches the store; nothing
// is persisted until Commit.
type Write[T any] interface {
	uow.Committable

	Add(entity *T) (*T, error)
	AddRange(entities []*T) error
	Update(entity *T) error
	UpdateRange(entities []*T) error
	Remove(entity *T) error
	RemoveWhere(ctx context.Context, where expr.Expr) error
	RemoveRange(entities []*T) error
}

// Read provides queries over T through the shared context.
type Read[T any, ID comparable] interface {
	Find(ctx context.Context, id ID) (*T, error)
	Where(ctx context.Context, where expr.Expr) ([]*T, error)
	Local(where expr.Expr) ([]*T, error)
}
