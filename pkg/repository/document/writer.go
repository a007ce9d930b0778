package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nimburion/dataaccess/pkg/expr"
	"github.com/nimburion/dataaccess/pkg/observability/logger"
	"github.com/nimburion/dataaccess/pkg/observability/metrics"
	"github.com/nimburion/dataaccess/pkg/observability/tracing"
	"github.com/nimburion/dataaccess/pkg/store/mongodb"
)

// Option configures a Writer or Reader.
type Option func(*settings)

type settings struct {
	log     logger.Logger
	metrics *metrics.Recorder
	timeout time.Duration
}

// WithLogger sets the logger failed operations are reported to at debug level.
func WithLogger(log logger.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics counts operations by result on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *settings) {
		s.metrics = r
	}
}

// WithOperationTimeout bounds each operation that runs under a context without a deadline.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

func newSettings(opts []Option) settings {
	s := settings{log: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// run executes fn with the session bound to its context when sess is non-nil. Errors from fn
// are returned as they are.
func (s settings) run(ctx context.Context, coll Collection, op tracing.SpanOperation, sess mongo.Session, fn func(ctx context.Context) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, op,
		tracing.WithCollection(coll.Name()),
		tracing.WithDBSystem("mongodb"),
		tracing.WithSession(sess != nil),
	)
	defer func() { tracing.End(span, err) }()

	if s.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
	}
	if sess != nil {
		ctx = mongo.NewSessionContext(ctx, sess)
	}

	err = fn(ctx)
	s.metrics.ObserveDocumentOp(string(op), coll.Name(), err)
	if err != nil {
		s.log.WithContext(ctx).Debug("document operation failed",
			"operation", string(op),
			"collection", coll.Name(),
			"error", err,
		)
	}
	return err
}

// Writer writes documents of type D to one collection. It holds no state besides the
// collection handle and is safe for concurrent use.
type Writer[D any] struct {
	coll Collection
	settings
}

// NewWriter creates a writer over coll.
func NewWriter[D any](coll Collection, opts ...Option) *Writer[D] {
	return &Writer[D]{coll: coll, settings: newSettings(opts)}
}

// NewWriterFor creates a writer over the named collection of adapter, using the adapter's
// operation timeout unless opts override it.
func NewWriterFor[D any](adapter *mongodb.Adapter, collection string, opts ...Option) *Writer[D] {
	opts = append([]Option{WithOperationTimeout(adapter.OperationTimeout())}, opts...)
	return NewWriter[D](adapter.Collection(collection), opts...)
}

// Collection returns the underlying collection.
func (w *Writer[D]) Collection() Collection { return w.coll }

// InsertOne inserts doc. When D embeds Doc, the generated id is set on doc.
func (w *Writer[D]) InsertOne(ctx context.Context, doc *D, sess mongo.Session) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	return w.run(ctx, w.coll, tracing.SpanOperationDocInsert, sess, func(ctx context.Context) error {
		res, err := w.coll.InsertOne(ctx, doc)
		if err != nil {
			return err
		}
		assignID(doc, res.InsertedID)
		return nil
	})
}

// InsertMany inserts docs in order. An empty slice is a no-op.
func (w *Writer[D]) InsertMany(ctx context.Context, docs []*D, sess mongo.Session) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return fmt.Errorf("document %d cannot be nil", i)
		}
		batch[i] = doc
	}
	return w.run(ctx, w.coll, tracing.SpanOperationDocInsert, sess, func(ctx context.Context) error {
		res, err := w.coll.InsertMany(ctx, batch)
		if err != nil {
			return err
		}
		for i, id := range res.InsertedIDs {
			if i < len(docs) {
				assignID(docs[i], id)
			}
		}
		return nil
	})
}

// Replace replaces the first document matching where with doc. No match is not an error.
func (w *Writer[D]) Replace(ctx context.Context, where expr.Expr, doc *D, sess mongo.Session) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	filter, err := expr.ToBSON(where)
	if err != nil {
		return err
	}
	return w.run(ctx, w.coll, tracing.SpanOperationDocReplace, sess, func(ctx context.Context) error {
		return ignoreNoDocuments(w.coll.FindOneAndReplace(ctx, filter, doc).Err())
	})
}

// Update applies spec to the first document matching where. No match is not an error.
func (w *Writer[D]) Update(ctx context.Context, where expr.Expr, spec *UpdateSpec, sess mongo.Session) error {
	if spec.IsEmpty() {
		return ErrEmptyUpdate
	}
	filter, err := expr.ToBSON(where)
	if err != nil {
		return err
	}
	return w.run(ctx, w.coll, tracing.SpanOperationDocUpdate, sess, func(ctx context.Context) error {
		return ignoreNoDocuments(w.coll.FindOneAndUpdate(ctx, filter, spec.BSON()).Err())
	})
}

// DeleteOne deletes the first document matching where.
func (w *Writer[D]) DeleteOne(ctx context.Context, where expr.Expr, sess mongo.Session) error {
	filter, err := expr.ToBSON(where)
	if err != nil {
		return err
	}
	return w.deleteOne(ctx, filter, sess)
}

// DeleteMany deletes every document matching where.
func (w *Writer[D]) DeleteMany(ctx context.Context, where expr.Expr, sess mongo.Session) error {
	filter, err := expr.ToBSON(where)
	if err != nil {
		return err
	}
	return w.run(ctx, w.coll, tracing.SpanOperationDocDelete, sess, func(ctx context.Context) error {
		_, err := w.coll.DeleteMany(ctx, filter)
		return err
	})
}

// Delete deletes the document whose _id is the ObjectID id. A malformed id fails with
// ErrInvalidIdentifier before the store is contacted; a missing document is not an error.
func (w *Writer[D]) Delete(ctx context.Context, id string, sess mongo.Session) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	return w.deleteOne(ctx, bson.D{{Key: "_id", Value: oid}}, sess)
}

func (w *Writer[D]) deleteOne(ctx context.Context, filter bson.D, sess mongo.Session) error {
	return w.run(ctx, w.coll, tracing.SpanOperationDocDelete, sess, func(ctx context.Context) error {
		_, err := w.coll.DeleteOne(ctx, filter)
		return err
	})
}

// InsertOneAsync runs InsertOne on its own goroutine; the channel yields its error and closes.
func (w *Writer[D]) InsertOneAsync(ctx context.Context, doc *D, sess mongo.Session) <-chan error {
	return async(func() error { return w.InsertOne(ctx, doc, sess) })
}

func (w *Writer[D]) InsertManyAsync(ctx context.Context, docs []*D, sess mongo.Session) <-chan error {
	return async(func() error { return w.InsertMany(ctx, docs, sess) })
}

func (w *Writer[D]) ReplaceAsync(ctx context.Context, where expr.Expr, doc *D, sess mongo.Session) <-chan error {
	return async(func() error { return w.Replace(ctx, where, doc, sess) })
}

func (w *Writer[D]) UpdateAsync(ctx context.Context, where expr.Expr, spec *UpdateSpec, sess mongo.Session) <-chan error {
	return async(func() error { return w.Update(ctx, where, spec, sess) })
}

func (w *Writer[D]) DeleteOneAsync(ctx context.Context, where expr.Expr, sess mongo.Session) <-chan error {
	return async(func() error { return w.DeleteOne(ctx, where, sess) })
}

func (w *Writer[D]) DeleteManyAsync(ctx context.Context, where expr.Expr, sess mongo.Session) <-chan error {
	return async(func() error { return w.DeleteMany(ctx, where, sess) })
}

func (w *Writer[D]) DeleteAsync(ctx context.Context, id string, sess mongo.Session) <-chan error {
	return async(func() error { return w.Delete(ctx, id, sess) })
}

func async(fn func() error) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		out <- fn()
	}()
	return out
}

func assignID(doc any, raw interface{}) {
	oid, ok := raw.(primitive.ObjectID)
	if !ok {
		return
	}
	if d, ok := doc.(identified); ok && d.ObjectID().IsZero() {
		d.SetObjectID(oid)
	}
}

func ignoreNoDocuments(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}
