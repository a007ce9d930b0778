package expr

import (
	"fmt"
	"reflect"
	"time"
)

// Record is the in-memory view of an entity or document: field name to value.
type Record map[string]any

// Eval reports whether rec satisfies e. Missing fields compare as nil.
func Eval(e Expr, rec Record) (bool, error) {
	switch n := e.(type) {
	case Comparison:
		if err := n.validate(); err != nil {
			return false, err
		}
		return evalComparison(n, rec[n.Field])
	case Conjunction:
		for _, child := range n.Exprs {
			if child == nil {
				return false, nilChild("AND")
			}
			ok, err := Eval(child, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Disjunction:
		for _, child := range n.Exprs {
			if child == nil {
				return false, nilChild("OR")
			}
			ok, err := Eval(child, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Negation:
		if n.Expr == nil {
			return false, nilChild("NOT")
		}
		ok, err := Eval(n.Expr, rec)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpr, e)
	}
}

func evalComparison(c Comparison, actual any) (bool, error) {
	switch c.Op {
	case OpEq:
		return equal(actual, c.Value), nil
	case OpNe:
		return !equal(actual, c.Value), nil
	case OpIn:
		for _, v := range c.Value.([]any) {
			if equal(actual, v) {
				return true, nil
			}
		}
		return false, nil
	}

	cmp, err := compare(actual, c.Value)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", c.Field, err)
	}
	switch c.Op {
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	default:
		return cmp <= 0, nil
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}
	if cmp, err := compare(a, b); err == nil {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// compare orders numbers numerically regardless of Go kind, strings lexically and times chronologically.
func compare(a, b any) (int, error) {
	a, b = deref(a), deref(b)
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmpOrdered(af, bf), nil
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmpOrdered(av, bv), nil
		}
	case []byte:
		if bv, ok := b.(string); ok {
			return cmpOrdered(string(av), bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, nil
			}
			if !av {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot order %T and %T", a, b)
}

func cmpOrdered[V int | float64 | string](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
