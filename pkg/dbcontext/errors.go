package dbcontext

import (
	"errors"
	"fmt"
)

var (
	// ErrNilEntity is returned when a nil entity is staged.
	ErrNilEntity = errors.New("entity cannot be nil")
	// ErrNotRegistered is returned when an entity type has no registered set.
	ErrNotRegistered = errors.New("entity type not registered")
	// ErrConcurrencyConflict is returned when an UPDATE or DELETE affected no rows.
	ErrConcurrencyConflict = errors.New("expected one affected row, got none")
)

// SaveError describes the statement that made SaveChanges fail. The transaction has been rolled
// back and tracked state is unchanged when it is returned.
type SaveError struct {
	Op    string
	Table string
	Err   error
}

func (e *SaveError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("save changes: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("save changes: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Versioned is implemented by entities that use optimistic locking on a "version" column.
type Versioned interface {
	GetVersion() int64
	SetVersion(version int64)
}

// OptimisticLockError is returned when a versioned update or delete lost a race.
type OptimisticLockError struct {
	Table    string
	EntityID string
	Expected int64
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("optimistic lock failed for %s %s: expected version %d",
		e.Table, e.EntityID, e.Expected)
}

func (e *OptimisticLockError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}
