// Package dbcontext implements a change-tracking database context over database/sql.
//
// Entities are staged through typed sets (Add, Update, Remove) and written together by
// SaveChanges in a single transaction. Entities loaded through a set are tracked in an
// identity map, so each stored row is represented by at most one instance per context.
package dbcontext

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
)

const versionColumn = "version"

// DB is the subset of *sql.DB the context needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for rollback and post-commit failures.
func WithLogger(log logger.Logger) Option {
	return func(c *Context) {
		if log != nil {
			c.log = log
		}
	}
}

// WithQueryTracking sets whether entities loaded by queries are tracked. Tracking is on by default.
func WithQueryTracking(enabled bool) Option {
	return func(c *Context) {
		c.tracking = enabled
	}
}

// WithCommandTimeout bounds every statement round trip that runs under a context without a deadline.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(c *Context) {
		c.timeout = timeout
	}
}

// Context is a session with a relational store: a change tracker, the registered entity sets,
// and the connection SaveChanges writes through. A Context is not safe for concurrent use.
type Context struct {
	db       DB
	dialect  Dialect
	log      logger.Logger
	tracker  *ChangeTracker
	sets     map[reflect.Type]any
	tracking bool
	timeout  time.Duration
}

// New creates a Context over db.
func New(db DB, dialect Dialect, opts ...Option) *Context {
	c := &Context{
		db:       db,
		dialect:  dialect,
		log:      logger.Nop(),
		tracker:  newChangeTracker(),
		sets:     make(map[reflect.Type]any),
		tracking: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register binds entity type T to table and returns its set. Registering T again replaces the
// previous binding.
func Register[T any, ID comparable](c *Context, table, idColumn string, mapper EntityMapper[T, ID]) *Set[T, ID] {
	s := &Set[T, ID]{ctx: c, table: table, idColumn: idColumn, mapper: mapper}
	c.sets[reflect.TypeFor[T]()] = s
	return s
}

// SetOf returns the set registered for T.
func SetOf[T any, ID comparable](c *Context) (*Set[T, ID], error) {
	typ := reflect.TypeFor[T]()
	registered, ok := c.sets[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, typ)
	}
	s, ok := registered.(*Set[T, ID])
	if !ok {
		return nil, fmt.Errorf("%w: %s is registered with a different id type", ErrNotRegistered, typ)
	}
	return s, nil
}

// ChangeTracker returns the tracker holding this context's entries.
func (c *Context) ChangeTracker() *ChangeTracker { return c.tracker }

// Dialect returns the SQL dialect statements are built for.
func (c *Context) Dialect() Dialect { return c.dialect }

// SetQueryTracking turns identity-map tracking of query results on or off.
func (c *Context) SetQueryTracking(enabled bool) { c.tracking = enabled }

// QueryTracking reports whether query results are tracked.
func (c *Context) QueryTracking() bool { return c.tracking }

// DetectChanges marks Unchanged entities whose mapped values differ from their snapshot as Modified.
func (c *Context) DetectChanges() {
	for _, e := range c.tracker.Entries() {
		if e.state == Unchanged && e.changed() {
			c.tracker.setState(e, Modified)
		}
	}
}

// HasChanges reports whether SaveChanges would write anything.
func (c *Context) HasChanges() bool {
	c.DetectChanges()
	return len(c.tracker.pending()) > 0
}

// PendingCounts returns the number of pending entries per state name.
func (c *Context) PendingCounts() map[string]int {
	c.DetectChanges()
	counts := make(map[string]int)
	for _, e := range c.tracker.pending() {
		counts[e.state.String()]++
	}
	return counts
}

type flushResult struct {
	key        any
	hasKey     bool
	version    int64
	hasVersion bool
}

// SaveChanges writes every pending entry in staging order inside one transaction. With nothing
// pending it returns nil without touching the store. On failure the transaction is rolled back,
// tracked state is left as it was and a *SaveError is returned.
func (c *Context) SaveChanges(ctx context.Context) (err error) {
	c.DetectChanges()
	pending := c.tracker.pending()
	if len(pending) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanOperationDBCommit,
		tracing.WithDBSystem(c.dialect.Name),
		tracing.WithPendingChanges(len(pending)),
	)
	defer func() { tracing.End(span, err) }()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &SaveError{Op: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.log.Error("failed to rollback save after panic",
					"panic", p,
					"rollback_error", rbErr,
				)
			}
			panic(p)
		}
	}()

	results := make([]flushResult, len(pending))
	for i, e := range pending {
		res, flushErr := c.flush(ctx, tx, e)
		if flushErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.log.Error("failed to rollback save",
					"original_error", flushErr,
					"rollback_error", rbErr,
				)
			}
			return flushErr
		}
		results[i] = res
	}

	if err := tx.Commit(); err != nil {
		return &SaveError{Op: "commit", Err: err}
	}

	c.accept(pending, results)
	return nil
}

func (c *Context) flush(ctx context.Context, tx execer, e *Entry) (flushResult, error) {
	var res flushResult
	table, idColumn := e.typ.tableName(), e.typ.keyColumn()

	columns, values, err := e.typ.row(e.entity)
	if err != nil {
		return res, &SaveError{Op: "map", Table: table, Err: err}
	}
	versioned, hasVersion := e.entity.(Versioned)
	if hasVersion && indexOf(columns, versionColumn) < 0 {
		hasVersion = false
	}

	switch e.state {
	case Added:
		return c.insert(ctx, tx, e, columns, values)

	case Modified:
		id := e.typ.keyValue(e.entity)
		update := c.dialect.builder().Update(table)
		for i, col := range columns {
			switch {
			case col == idColumn:
			case hasVersion && col == versionColumn:
				update = update.Set(col, versioned.GetVersion()+1)
			default:
				update = update.Set(col, values[i])
			}
		}
		update = update.Where(sq.Eq{idColumn: id})
		if hasVersion {
			update = update.Where(sq.Eq{versionColumn: versioned.GetVersion()})
			res.version, res.hasVersion = versioned.GetVersion()+1, true
		}
		query, args, err := update.ToSql()
		if err != nil {
			return res, &SaveError{Op: "update", Table: table, Err: err}
		}
		return res, c.execOne(ctx, tx, "update", e, query, args, versioned, hasVersion)

	case Deleted:
		id := e.typ.keyValue(e.entity)
		del := c.dialect.builder().Delete(table).Where(sq.Eq{idColumn: id})
		if hasVersion {
			del = del.Where(sq.Eq{versionColumn: versioned.GetVersion()})
		}
		query, args, err := del.ToSql()
		if err != nil {
			return res, &SaveError{Op: "delete", Table: table, Err: err}
		}
		return res, c.execOne(ctx, tx, "delete", e, query, args, versioned, hasVersion)
	}

	return res, &SaveError{Op: "flush", Table: table, Err: fmt.Errorf("unexpected state %s", e.state)}
}

func (c *Context) insert(ctx context.Context, tx execer, e *Entry, columns []string, values []any) (flushResult, error) {
	var res flushResult
	table, idColumn := e.typ.tableName(), e.typ.keyColumn()

	_, hasID := e.typ.identity(e.entity)
	if !hasID {
		// The store generates the key.
		if i := indexOf(columns, idColumn); i >= 0 {
			columns = append(columns[:i:i], columns[i+1:]...)
			values = append(values[:i:i], values[i+1:]...)
		}
	}

	insert := c.dialect.builder().Insert(table).Columns(columns...).Values(values...)
	if !hasID && c.dialect.Returning {
		query, args, err := insert.Suffix("RETURNING " + idColumn).ToSql()
		if err != nil {
			return res, &SaveError{Op: "insert", Table: table, Err: err}
		}
		var key any
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
			return res, &SaveError{Op: "insert", Table: table, Err: err}
		}
		res.key, res.hasKey = key, true
		return res, nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return res, &SaveError{Op: "insert", Table: table, Err: err}
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return res, &SaveError{Op: "insert", Table: table, Err: err}
	}
	if !hasID {
		key, err := result.LastInsertId()
		if err != nil {
			return res, &SaveError{Op: "insert", Table: table, Err: err}
		}
		res.key, res.hasKey = key, true
	}
	return res, nil
}

func (c *Context) execOne(ctx context.Context, tx execer, op string, e *Entry, query string, args []any, versioned Versioned, hasVersion bool) error {
	table := e.typ.tableName()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return &SaveError{Op: op, Table: table, Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &SaveError{Op: op, Table: table, Err: err}
	}
	if affected > 0 {
		return nil
	}
	if hasVersion {
		return &SaveError{Op: op, Table: table, Err: &OptimisticLockError{
			Table:    table,
			EntityID: fmt.Sprint(e.typ.keyValue(e.entity)),
			Expected: versioned.GetVersion(),
		}}
	}
	return &SaveError{Op: op, Table: table, Err: ErrConcurrencyConflict}
}

// accept applies a committed flush to the tracked entities.
func (c *Context) accept(pending []*Entry, results []flushResult) {
	for i, e := range pending {
		if e.state == Deleted {
			c.tracker.detach(e)
			continue
		}
		res := results[i]
		if res.hasKey {
			if err := e.typ.assignKey(e.entity, res.key); err != nil {
				c.log.Error("failed to assign generated key",
					"table", e.typ.tableName(),
					"error", err,
				)
			}
		}
		if res.hasVersion {
			if v, ok := e.entity.(Versioned); ok {
				v.SetVersion(res.version)
			}
		}
		c.tracker.setState(e, Unchanged)
		e.takeSnapshot()
	}
}

func (c *Context) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func indexOf(columns []string, name string) int {
	for i, col := range columns {
		if col == name {
			return i
		}
	}
	return -1
}
