package expr

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// ToSQL compiles e into a squirrel predicate usable in a WHERE clause. Placeholders are rendered by
// the statement builder the predicate is attached to.
func ToSQL(e Expr) (sq.Sqlizer, error) {
	switch n := e.(type) {
	case Comparison:
		if err := n.validate(); err != nil {
			return nil, err
		}
		return comparisonToSQL(n), nil
	case Conjunction:
		parts, err := childrenToSQL(n.Exprs, "AND")
		if err != nil {
			return nil, err
		}
		return sq.And(parts), nil
	case Disjunction:
		parts, err := childrenToSQL(n.Exprs, "OR")
		if err != nil {
			return nil, err
		}
		return sq.Or(parts), nil
	case Negation:
		if n.Expr == nil {
			return nil, nilChild("NOT")
		}
		inner, err := ToSQL(n.Expr)
		if err != nil {
			return nil, err
		}
		query, args, err := inner.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to render negated predicate: %w", err)
		}
		return sq.Expr("NOT ("+query+")", args...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpr, e)
	}
}

func comparisonToSQL(c Comparison) sq.Sqlizer {
	switch c.Op {
	case OpEq, OpIn:
		return sq.Eq{c.Field: c.Value}
	case OpNe:
		return sq.NotEq{c.Field: c.Value}
	case OpGt:
		return sq.Gt{c.Field: c.Value}
	case OpGte:
		return sq.GtOrEq{c.Field: c.Value}
	case OpLt:
		return sq.Lt{c.Field: c.Value}
	default:
		return sq.LtOrEq{c.Field: c.Value}
	}
}

func childrenToSQL(exprs []Expr, parent string) ([]sq.Sqlizer, error) {
	parts := make([]sq.Sqlizer, 0, len(exprs))
	for _, child := range exprs {
		if child == nil {
			return nil, nilChild(parent)
		}
		part, err := ToSQL(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}
