package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nimburion/dataaccess/pkg/expr"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
	"github.com/nimburion/dataaccess/pkg/store/mongodb"
)

// Reader loads documents of type D from one collection.
type Reader[D any] struct {
	coll Collection
	settings
}

// NewReader creates a reader over coll.
func NewReader[D any](coll Collection, opts ...Option) *Reader[D] {
	return &Reader[D]{coll: coll, settings: newSettings(opts)}
}

// NewReaderFor creates a reader over the named collection of adapter.
func NewReaderFor[D any](adapter *mongodb.Adapter, collection string, opts ...Option) *Reader[D] {
	opts = append([]Option{WithOperationTimeout(adapter.OperationTimeout())}, opts...)
	return NewReader[D](adapter.Collection(collection), opts...)
}

// FindByID returns the document whose _id is the ObjectID id. A missing document yields
// mongo.ErrNoDocuments.
func (r *Reader[D]) FindByID(ctx context.Context, id string, sess mongo.Session) (*D, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, sess)
}

// FindOne returns the first document matching where, or mongo.ErrNoDocuments.
func (r *Reader[D]) FindOne(ctx context.Context, where expr.Expr, sess mongo.Session) (*D, error) {
	filter, err := expr.ToBSON(where)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, filter, sess)
}

// Where returns every document matching where.
func (r *Reader[D]) Where(ctx context.Context, where expr.Expr, sess mongo.Session) ([]*D, error) {
	filter, err := expr.ToBSON(where)
	if err != nil {
		return nil, err
	}
	var out []*D
	err = r.run(ctx, r.coll, tracing.SpanOperationDocFind, sess, func(ctx context.Context) error {
		cur, err := r.coll.Find(ctx, filter)
		if err != nil {
			return err
		}
		return cur.All(ctx, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reader[D]) findOne(ctx context.Context, filter bson.D, sess mongo.Session) (*D, error) {
	doc := new(D)
	err := r.run(ctx, r.coll, tracing.SpanOperationDocFind, sess, func(ctx context.Context) error {
		return r.coll.FindOne(ctx, filter).Decode(doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
