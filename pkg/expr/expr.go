// Package expr defines a small boolean expression tree used as the predicate language of the
// repositories. The same tree is evaluated in memory, compiled to SQL for the relational context and
// compiled to a BSON filter for the document writer.
package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidExpr is returned when an expression tree cannot be interpreted.
var ErrInvalidExpr = errors.New("invalid expression")

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Expr is a node of a predicate tree. The set of implementations is closed.
type Expr interface {
	fmt.Stringer
	expr()
}

// Comparison compares one field with a value (or a value list for OpIn).
type Comparison struct {
	Field string
	Op    Op
	Value any
}

// Conjunction matches when every child matches.
type Conjunction struct {
	Exprs []Expr
}

// Disjunction matches when at least one child matches.
type Disjunction struct {
	Exprs []Expr
}

// Negation inverts its child.
type Negation struct {
	Expr Expr
}

func (Comparison) expr() {}

func (Conjunction) expr() {}

func (Disjunction) expr() {}

func (Negation) expr() {}

// FieldRef starts a comparison on a named field (column name or document field).
type FieldRef string

// Field returns a reference to the named field.
func Field(name string) FieldRef { return FieldRef(name) }

func (f FieldRef) compare(op Op, v any) Expr {
	return Comparison{Field: string(f), Op: op, Value: v}
}

// Eq matches field == v. Eq(nil) matches missing or null values.
func (f FieldRef) Eq(v any) Expr { return f.compare(OpEq, v) }

func (f FieldRef) Ne(v any) Expr { return f.compare(OpNe, v) }

func (f FieldRef) Gt(v any) Expr { return f.compare(OpGt, v) }

func (f FieldRef) Gte(v any) Expr { return f.compare(OpGte, v) }

func (f FieldRef) Lt(v any) Expr { return f.compare(OpLt, v) }

func (f FieldRef) Lte(v any) Expr { return f.compare(OpLte, v) }

// In matches when the field equals any of values.
func (f FieldRef) In(values ...any) Expr {
	if values == nil {
		values = []any{}
	}
	return f.compare(OpIn, values)
}

// And combines expressions with logical AND. And() matches everything.
func And(exprs ...Expr) Expr { return Conjunction{Exprs: exprs} }

// Or combines expressions with logical OR. Or() matches nothing.
func Or(exprs ...Expr) Expr { return Disjunction{Exprs: exprs} }

// Not negates e.
func Not(e Expr) Expr { return Negation{Expr: e} }

// True matches every record.
func True() Expr { return Conjunction{} }

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

func (c Conjunction) String() string { return joinExprs(c.Exprs, " AND ", "TRUE") }

func (d Disjunction) String() string { return joinExprs(d.Exprs, " OR ", "FALSE") }

func (n Negation) String() string {
	if n.Expr == nil {
		return "NOT <nil>"
	}
	return "NOT (" + n.Expr.String() + ")"
}

func joinExprs(exprs []Expr, sep, empty string) string {
	if len(exprs) == 0 {
		return empty
	}
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		if e == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = "(" + e.String() + ")"
	}
	return strings.Join(parts, sep)
}

func (c Comparison) validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidExpr)
	}
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return nil
	case OpIn:
		if _, ok := c.Value.([]any); !ok {
			return fmt.Errorf("%w: %s IN requires a value list", ErrInvalidExpr, c.Field)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidExpr, c.Op)
	}
}

func nilChild(parent string) error {
	return fmt.Errorf("%w: nil operand in %s", ErrInvalidExpr, parent)
}
