package dbcontext

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// EntityMapper defines how to map between entities and database rows.
type EntityMapper[T any, ID comparable] interface {
	// ToRow converts an entity to column names and values. The id column must be included.
	ToRow(entity *T) (columns []string, values []any, err error)

	// FromRow scans the current row into a new entity.
	FromRow(rows *sql.Rows) (*T, error)

	GetID(entity *T) ID
	SetID(entity *T, id ID)
}

// FieldCopier is implemented by mappers that can refresh an entity in place. CopyMapped copies
// only the fields the mapper persists from src to dst, so Reload leaves unmapped fields alone.
// Without it Reload replaces the whole value.
type FieldCopier[T any] interface {
	CopyMapped(dst, src *T)
}

// ReflectionMapper maps exported struct fields using their `db` tag (lowercased field name when
// absent, skipped for "-").
type ReflectionMapper[T any, ID comparable] struct {
	idField string
}

// NewReflectionMapper creates a reflection-based mapper whose identifier is the Go field idField.
func NewReflectionMapper[T any, ID comparable](idField string) *ReflectionMapper[T, ID] {
	return &ReflectionMapper[T, ID]{idField: idField}
}

func columnName(field reflect.StructField) string {
	name := field.Tag.Get("db")
	if name == "" {
		name = strings.ToLower(field.Name)
	}
	return name
}

// ToRow converts an entity to column names and values using reflection.
func (m *ReflectionMapper[T, ID]) ToRow(entity *T) ([]string, []any, error) {
	v := reflect.ValueOf(entity).Elem()
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("reflection mapper requires a struct, got %s", t)
	}

	columns := make([]string, 0, t.NumField())
	values := make([]any, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := columnName(field)
		if name == "-" || !field.IsExported() {
			continue
		}
		columns = append(columns, name)
		values = append(values, v.Field(i).Interface())
	}
	return columns, values, nil
}

// FromRow scans the current row into a new entity, matching result columns to field tags.
func (m *ReflectionMapper[T, ID]) FromRow(rows *sql.Rows) (*T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	scanDest := make([]any, len(columns))
	columnIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		columnIndex[col] = i
		scanDest[i] = new(any)
	}
	if err := rows.Scan(scanDest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	entity := new(T)
	v := reflect.ValueOf(entity).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := columnName(field)
		if name == "-" || !field.IsExported() {
			continue
		}
		idx, ok := columnIndex[name]
		if !ok {
			continue
		}
		value := *(scanDest[idx].(*any))
		if value == nil {
			continue
		}
		if err := assign(v.Field(i), value); err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return entity, nil
}

// GetID extracts the identifier field.
func (m *ReflectionMapper[T, ID]) GetID(entity *T) ID {
	field := reflect.ValueOf(entity).Elem().FieldByName(m.idField)
	if !field.IsValid() {
		var zero ID
		return zero
	}
	id, _ := field.Interface().(ID)
	return id
}

// SetID sets the identifier field.
func (m *ReflectionMapper[T, ID]) SetID(entity *T, id ID) {
	field := reflect.ValueOf(entity).Elem().FieldByName(m.idField)
	if field.IsValid() && field.CanSet() {
		field.Set(reflect.ValueOf(id))
	}
}

// CopyMapped copies the persisted fields of src into dst. Fields tagged "-" and unexported
// fields keep their value in dst.
func (m *ReflectionMapper[T, ID]) CopyMapped(dst, src *T) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	t := dv.Type()
	if t.Kind() != reflect.Struct {
		*dst = *src
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if columnName(field) == "-" || !field.IsExported() {
			continue
		}
		dv.Field(i).Set(sv.Field(i))
	}
}

func assign(dst reflect.Value, value any) error {
	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if dst.Kind() == reflect.String && src.Kind() != reflect.String && src.Kind() != reflect.Slice {
		// int -> string conversions would yield a rune, not digits.
		return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
	}
	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
}

// convertID converts a driver-returned key (int64, []byte, string...) to the entity's ID type.
func convertID[ID comparable](raw any) (ID, error) {
	var id ID
	if typed, ok := raw.(ID); ok {
		return typed, nil
	}
	if raw == nil {
		return id, fmt.Errorf("store returned a nil key")
	}
	if err := assign(reflect.ValueOf(&id).Elem(), raw); err != nil {
		return id, fmt.Errorf("generated key: %w", err)
	}
	return id, nil
}

func isZero[ID comparable](id ID) bool {
	var zero ID
	return id == zero
}
