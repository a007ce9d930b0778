package dbcontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nimburion/dataaccess/pkg/expr"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
)

// Set is the typed entry point for staging and querying entities of type T.
type Set[T any, ID comparable] struct {
	ctx      *Context
	table    string
	idColumn string
	mapper   EntityMapper[T, ID]
}

// Table returns the table T maps to.
func (s *Set[T, ID]) Table() string { return s.table }

// Mapper returns the mapper used for T.
func (s *Set[T, ID]) Mapper() EntityMapper[T, ID] { return s.mapper }

// Add stages entity for insertion. Adding an entity staged for deletion cancels the deletion;
// adding an already tracked entity is a no-op.
func (s *Set[T, ID]) Add(entity *T) error {
	if entity == nil {
		return ErrNilEntity
	}
	tr := s.ctx.tracker
	if e := tr.entry(entity); e != nil {
		if e.state == Deleted {
			tr.setState(e, Unchanged)
		}
		return nil
	}
	tr.track(s, entity, Added)
	return nil
}

// AddRange stages each entity for insertion. Nothing is staged if any entity is nil.
func (s *Set[T, ID]) AddRange(entities []*T) error {
	return s.each(entities, s.Add)
}

// Update stages entity for update. An untracked entity with a zero id is staged for insertion
// instead, and an entity already staged for insertion stays Added.
func (s *Set[T, ID]) Update(entity *T) error {
	if entity == nil {
		return ErrNilEntity
	}
	tr := s.ctx.tracker
	if e := tr.entry(entity); e != nil && e.state == Added {
		return nil
	}
	if isZero(s.mapper.GetID(entity)) {
		tr.track(s, entity, Added)
		return nil
	}
	tr.track(s, entity, Modified)
	return nil
}

// UpdateRange stages each entity for update. Nothing is staged if any entity is nil.
func (s *Set[T, ID]) UpdateRange(entities []*T) error {
	return s.each(entities, s.Update)
}

// Remove stages entity for deletion. Removing an entity that was only staged for insertion
// simply stops tracking it.
func (s *Set[T, ID]) Remove(entity *T) error {
	if entity == nil {
		return ErrNilEntity
	}
	tr := s.ctx.tracker
	if e := tr.entry(entity); e != nil && e.state == Added {
		tr.detach(e)
		return nil
	}
	tr.track(s, entity, Deleted)
	return nil
}

// RemoveRange stages each entity for deletion. Nothing is staged if any entity is nil.
func (s *Set[T, ID]) RemoveRange(entities []*T) error {
	return s.each(entities, s.Remove)
}

func (s *Set[T, ID]) each(entities []*T, stage func(*T) error) error {
	for _, entity := range entities {
		if entity == nil {
			return ErrNilEntity
		}
	}
	for _, entity := range entities {
		if err := stage(entity); err != nil {
			return err
		}
	}
	return nil
}

// Entry returns the tracking entry of entity, or nil when it is not tracked.
func (s *Set[T, ID]) Entry(entity *T) *Entry {
	return s.ctx.tracker.entry(entity)
}

// Find returns the entity with the given id. A tracked instance is returned without querying
// the store. sql.ErrNoRows is returned when no row matches.
func (s *Set[T, ID]) Find(ctx context.Context, id ID) (*T, error) {
	if s.ctx.tracking {
		if e := s.ctx.tracker.lookup(s.table, fmt.Sprint(id)); e != nil {
			return e.entity.(*T), nil
		}
	}

	entity, err := s.selectByID(ctx, tracing.SpanOperationDBQuery, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, sql.ErrNoRows
	}
	return s.materialize(entity), nil
}

// Where returns the stored entities matching where. With query tracking on, rows that are
// already tracked resolve to the tracked instance.
func (s *Set[T, ID]) Where(ctx context.Context, where expr.Expr) (_ []*T, err error) {
	pred, err := expr.ToSQL(where)
	if err != nil {
		return nil, err
	}
	query, args, err := s.ctx.dialect.builder().Select("*").From(s.table).Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanOperationDBQuery,
		tracing.WithDBTable(s.table),
		tracing.WithDBSystem(s.ctx.dialect.Name),
	)
	defer func() { tracing.End(span, err) }()

	ctx, cancel := s.ctx.withTimeout(ctx)
	defer cancel()

	rows, err := s.ctx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		entity, err := s.mapper.FromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s.materialize(entity))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", s.table, err)
	}
	return out, nil
}

// Local evaluates where against the tracked, not deleted entities of this set without querying
// the store. Results are in staging order.
func (s *Set[T, ID]) Local(where expr.Expr) ([]*T, error) {
	out := []*T{}
	for _, e := range s.ctx.tracker.Entries() {
		if e.typ != entityType(s) || e.state == Deleted {
			continue
		}
		columns, values, err := s.row(e.entity)
		if err != nil {
			return nil, err
		}
		rec := make(expr.Record, len(columns))
		for i, col := range columns {
			rec[col] = values[i]
		}
		ok, err := expr.Eval(where, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e.entity.(*T))
		}
	}
	return out, nil
}

// materialize resolves a freshly read entity against the identity map.
func (s *Set[T, ID]) materialize(fresh *T) *T {
	if !s.ctx.tracking {
		return fresh
	}
	tr := s.ctx.tracker
	if e := tr.lookup(s.table, fmt.Sprint(s.mapper.GetID(fresh))); e != nil {
		return e.entity.(*T)
	}
	e := tr.track(s, fresh, Unchanged)
	e.takeSnapshot()
	return fresh
}

// selectByID returns nil without error when no row matches.
func (s *Set[T, ID]) selectByID(ctx context.Context, op tracing.SpanOperation, id any) (_ *T, err error) {
	query, args, err := s.ctx.dialect.builder().
		Select("*").
		From(s.table).
		Where(sq.Eq{s.idColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, op,
		tracing.WithDBTable(s.table),
		tracing.WithDBSystem(s.ctx.dialect.Name),
	)
	defer func() { tracing.End(span, err) }()

	ctx, cancel := s.ctx.withTimeout(ctx)
	defer cancel()

	rows, err := s.ctx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", s.table, err)
		}
		return nil, nil
	}
	return s.mapper.FromRow(rows)
}

func (s *Set[T, ID]) tableName() string { return s.table }

func (s *Set[T, ID]) keyColumn() string { return s.idColumn }

func (s *Set[T, ID]) row(entity any) ([]string, []any, error) {
	return s.mapper.ToRow(entity.(*T))
}

func (s *Set[T, ID]) identity(entity any) (string, bool) {
	id := s.mapper.GetID(entity.(*T))
	if isZero(id) {
		return "", false
	}
	return fmt.Sprint(id), true
}

func (s *Set[T, ID]) keyValue(entity any) any {
	return s.mapper.GetID(entity.(*T))
}

func (s *Set[T, ID]) assignKey(entity any, raw any) error {
	id, err := convertID[ID](raw)
	if err != nil {
		return err
	}
	s.mapper.SetID(entity.(*T), id)
	return nil
}

func (s *Set[T, ID]) load(ctx context.Context, entity any) (bool, error) {
	target := entity.(*T)
	id := s.mapper.GetID(target)
	if isZero(id) {
		return false, nil
	}
	fresh, err := s.selectByID(ctx, tracing.SpanOperationDBReload, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if fresh == nil {
		return false, nil
	}
	if c, ok := s.mapper.(FieldCopier[T]); ok {
		c.CopyMapped(target, fresh)
	} else {
		*target = *fresh
	}
	return true, nil
}
