// Package uow groups staged mutations on a shared dbcontext.Context into one atomic commit.
package uow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/dataaccess/pkg/dbcontext"
	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/observability/metrics"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
)

// Committable is anything that can persist its pending work.
type Committable interface {
	// Commit persists all pending work. It returns false on failure and never propagates the error.
	Commit(ctx context.Context) bool

	// CommitAsync runs Commit on a goroutine and delivers its result on the returned channel.
	CommitAsync(ctx context.Context) <-chan bool
}

// UnitOfWork coordinates the mutations staged through one or more repositories sharing a context.
type UnitOfWork interface {
	Committable

	// Context returns the shared persistence context.
	Context() *dbcontext.Context

	// EnableQueryTracking sets whether query results are tracked by the shared context.
	EnableQueryTracking(enabled bool)

	// RejectAllChanges discards every staged mutation: Added entries are detached, Modified and
	// Deleted entries are reloaded from the store.
	RejectAllChanges(ctx context.Context) error

	// SaveChanges persists pending work and returns a *CommitError on failure.
	SaveChanges(ctx context.Context) error
}

// CommitError is returned by SaveChanges when the pending work could not be persisted.
type CommitError struct {
	UnitOfWorkID string
	Err          error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("unit of work %s: %v", e.UnitOfWorkID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Option configures a unit of work.
type Option func(*unitOfWork)

// WithMetrics records commit and reject outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(u *unitOfWork) {
		u.metrics = r
	}
}

// WithID overrides the generated unit-of-work id.
func WithID(id string) Option {
	return func(u *unitOfWork) {
		if id != "" {
			u.id = id
		}
	}
}

type unitOfWork struct {
	id      string
	dbc     *dbcontext.Context
	log     logger.Logger
	metrics *metrics.Recorder
}

// New creates a unit of work over dbc. The unit of work does not own dbc and is not safe for
// concurrent use.
func New(dbc *dbcontext.Context, log logger.Logger, opts ...Option) UnitOfWork {
	if log == nil {
		log = logger.Nop()
	}
	u := &unitOfWork{
		id:  uuid.NewString(),
		dbc: dbc,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.log = log.With("unit_of_work_id", u.id)
	return u
}

func (u *unitOfWork) Context() *dbcontext.Context { return u.dbc }

func (u *unitOfWork) EnableQueryTracking(enabled bool) {
	u.dbc.SetQueryTracking(enabled)
}

func (u *unitOfWork) SaveChanges(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanOperationUoWCommit,
		tracing.WithDBSystem(u.dbc.Dialect().Name),
		tracing.WithUnitOfWork(u.id),
	)
	defer func() { tracing.End(span, err) }()

	pending := u.dbc.PendingCounts()
	start := time.Now()
	saveErr := u.dbc.SaveChanges(ctx)
	u.metrics.ObserveCommit(saveErr, time.Since(start), pending)
	if saveErr != nil {
		return &CommitError{UnitOfWorkID: u.id, Err: saveErr}
	}
	return nil
}

// Commit never raises: a panic while saving is logged and reported as false, like any other
// failure.
func (u *unitOfWork) Commit(ctx context.Context) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			u.log.WithContext(ctx).Error("commit panicked", "panic", fmt.Sprint(p))
			ok = false
		}
	}()
	if err := u.SaveChanges(ctx); err != nil {
		u.log.WithContext(ctx).Error("commit failed", "error", err.Error())
		return false
	}
	return true
}

func (u *unitOfWork) CommitAsync(ctx context.Context) <-chan bool {
	result := make(chan bool, 1)
	go func() {
		defer close(result)
		result <- u.Commit(ctx)
	}()
	return result
}

func (u *unitOfWork) RejectAllChanges(ctx context.Context) error {
	u.dbc.DetectChanges()

	rejected := make(map[string]int)
	for _, entry := range u.dbc.ChangeTracker().Entries() {
		state := entry.State()
		switch state {
		case dbcontext.Added:
			entry.Detach()
		case dbcontext.Modified, dbcontext.Deleted:
			if err := entry.Reload(ctx); err != nil {
				u.metrics.ObserveReject(rejected)
				return fmt.Errorf("reject changes on %s: %w", entry.Table(), err)
			}
		default:
			continue
		}
		rejected[state.String()]++
	}

	u.metrics.ObserveReject(rejected)
	if len(rejected) > 0 {
		u.log.WithContext(ctx).Debug("rejected staged changes", "rejected", rejected)
	}
	return nil
}
