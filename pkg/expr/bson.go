package expr

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

var bsonOperators = map[Op]string{
	OpEq:  "$eq",
	OpNe:  "$ne",
	OpGt:  "$gt",
	OpGte: "$gte",
	OpLt:  "$lt",
	OpLte: "$lte",
	OpIn:  "$in",
}

// ToBSON compiles e into a MongoDB query filter.
func ToBSON(e Expr) (bson.D, error) {
	switch n := e.(type) {
	case Comparison:
		if err := n.validate(); err != nil {
			return nil, err
		}
		value := n.Value
		if n.Op == OpIn {
			value = bson.A(n.Value.([]any))
		}
		return bson.D{{Key: n.Field, Value: bson.D{{Key: bsonOperators[n.Op], Value: value}}}}, nil
	case Conjunction:
		if len(n.Exprs) == 0 {
			return bson.D{}, nil
		}
		children, err := childrenToBSON(n.Exprs, "AND")
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$and", Value: children}}, nil
	case Disjunction:
		if len(n.Exprs) == 0 {
			// $or rejects an empty array; an impossible $in expresses "match nothing".
			return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{}}}}}, nil
		}
		children, err := childrenToBSON(n.Exprs, "OR")
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: children}}, nil
	case Negation:
		if n.Expr == nil {
			return nil, nilChild("NOT")
		}
		inner, err := ToBSON(n.Expr)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpr, e)
	}
}

func childrenToBSON(exprs []Expr, parent string) (bson.A, error) {
	out := make(bson.A, 0, len(exprs))
	for _, child := range exprs {
		if child == nil {
			return nil, nilChild(parent)
		}
		doc, err := ToBSON(child)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
