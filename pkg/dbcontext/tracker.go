package dbcontext

import (
	"context"
	"reflect"
	"sort"
)

// entityType is the type-erased view of a Set used by the tracker and by SaveChanges.
type entityType interface {
	tableName() string
	keyColumn() string
	row(entity any) ([]string, []any, error)
	identity(entity any) (string, bool)
	keyValue(entity any) any
	assignKey(entity any, raw any) error
	load(ctx context.Context, entity any) (bool, error)
}

type identityKey struct {
	table string
	id    string
}

// ChangeTracker records which entities a Context tracks and in which state. Entries are kept in
// staging order, which is also the order SaveChanges flushes them in.
type ChangeTracker struct {
	entries    map[any]*Entry
	identities map[identityKey]*Entry
	seq        uint64
}

func newChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		entries:    make(map[any]*Entry),
		identities: make(map[identityKey]*Entry),
	}
}

// Entries returns the tracked entries in staging order. The slice is a copy; entries may be
// detached while iterating it.
func (t *ChangeTracker) Entries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of tracked entities.
func (t *ChangeTracker) Len() int { return len(t.entries) }

func (t *ChangeTracker) pending() []*Entry {
	var out []*Entry
	for _, e := range t.Entries() {
		if e.state.pending() {
			out = append(out, e)
		}
	}
	return out
}

func (t *ChangeTracker) entry(entity any) *Entry {
	return t.entries[entity]
}

func (t *ChangeTracker) lookup(table, id string) *Entry {
	return t.identities[identityKey{table: table, id: id}]
}

func (t *ChangeTracker) track(typ entityType, entity any, state EntityState) *Entry {
	e := t.entries[entity]
	if e == nil {
		t.seq++
		e = &Entry{tracker: t, typ: typ, entity: entity, seq: t.seq}
		t.entries[entity] = e
	}
	t.setState(e, state)
	return e
}

// setState moves e to state. Non-added entries claim their identity; another instance already
// holding it is detached (last write wins).
func (t *ChangeTracker) setState(e *Entry, state EntityState) {
	e.state = state
	if state == Added || state == Detached {
		return
	}
	id, ok := e.typ.identity(e.entity)
	if !ok {
		return
	}
	key := identityKey{table: e.typ.tableName(), id: id}
	if other := t.identities[key]; other != nil && other != e {
		t.detach(other)
	}
	if e.bound && e.key != key && t.identities[e.key] == e {
		delete(t.identities, e.key)
	}
	t.identities[key] = e
	e.key, e.bound = key, true
}

func (t *ChangeTracker) detach(e *Entry) {
	if t.entries[e.entity] == e {
		delete(t.entries, e.entity)
	}
	if e.bound && t.identities[e.key] == e {
		delete(t.identities, e.key)
	}
	e.state = Detached
	e.bound = false
	e.snapshot = nil
}

// Entry is the tracking record of one entity.
type Entry struct {
	tracker  *ChangeTracker
	typ      entityType
	entity   any
	state    EntityState
	seq      uint64
	snapshot []any
	key      identityKey
	bound    bool
}

// Entity returns the tracked entity pointer.
func (e *Entry) Entity() any { return e.entity }

// State returns the current tracking state.
func (e *Entry) State() EntityState { return e.state }

// Table returns the table the entity maps to.
func (e *Entry) Table() string { return e.typ.tableName() }

// Detach stops tracking the entity, discarding any staged mutation.
func (e *Entry) Detach() {
	if e.state != Detached {
		e.tracker.detach(e)
	}
}

// Reload overwrites the entity with its stored row and marks it Unchanged. When the row no longer
// exists the entry is detached.
func (e *Entry) Reload(ctx context.Context) error {
	found, err := e.typ.load(ctx, e.entity)
	if err != nil {
		return err
	}
	if !found {
		e.Detach()
		return nil
	}
	e.tracker.setState(e, Unchanged)
	e.takeSnapshot()
	return nil
}

func (e *Entry) takeSnapshot() {
	_, values, err := e.typ.row(e.entity)
	if err != nil {
		e.snapshot = nil
		return
	}
	snapshot := make([]any, len(values))
	for i, v := range values {
		snapshot[i] = cloneValue(v)
	}
	e.snapshot = snapshot
}

// changed reports whether an Unchanged entity differs from its last known stored values.
func (e *Entry) changed() bool {
	if e.snapshot == nil {
		return false
	}
	_, values, err := e.typ.row(e.entity)
	if err != nil {
		return false
	}
	return !reflect.DeepEqual(values, e.snapshot)
}

// cloneValue copies v deeply enough that in-place edits of the entity (a byte written into a
// []byte field, a map entry added) are not seen through the snapshot. Struct values are copied
// shallowly.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface()
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if v.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(out, v)
			return out
		}
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	}
	return v
}
