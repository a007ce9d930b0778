// Package tracing provides OpenTelemetry spans for unit-of-work commits and document operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nimburion/dataaccess"

// SpanOperation represents a traced operation type.
type SpanOperation string

const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBReload SpanOperation = "db.reload"
	SpanOperationDBCommit SpanOperation = "db.commit"

	SpanOperationUoWCommit SpanOperation = "uow.commit"

	SpanOperationDocInsert  SpanOperation = "doc.insert"
	SpanOperationDocReplace SpanOperation = "doc.replace"
	SpanOperationDocUpdate  SpanOperation = "doc.update"
	SpanOperationDocDelete  SpanOperation = "doc.delete"
	SpanOperationDocFind    SpanOperation = "doc.find"
)

// SpanOption adds attributes to a span started by this package.
type SpanOption func(*spanOptions)

type spanOptions struct {
	target     string
	attributes []attribute.KeyValue
}

// WithDBTable sets the table the operation targets.
func WithDBTable(table string) SpanOption {
	return func(opts *spanOptions) {
		opts.target = table
		opts.attributes = append(opts.attributes, attribute.String("db.table", table))
	}
}

// WithCollection sets the document collection the operation targets.
func WithCollection(collection string) SpanOption {
	return func(opts *spanOptions) {
		opts.target = collection
		opts.attributes = append(opts.attributes, attribute.String("db.mongodb.collection", collection))
	}
}

// WithDBSystem sets the database system (postgresql, mysql, mongodb).
func WithDBSystem(system string) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithUnitOfWork tags the span with the unit of work it belongs to.
func WithUnitOfWork(id string) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("unit_of_work.id", id))
	}
}

// WithPendingChanges records how many staged mutations a commit flushes.
func WithPendingChanges(n int) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("unit_of_work.pending_changes", n))
	}
}

// WithSession marks a document operation as running inside a caller session.
func WithSession(inSession bool) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, attribute.Bool("db.mongodb.session", inSession))
	}
}

// StartSpan starts a client span named "<operation> <target>".
func StartSpan(ctx context.Context, operation SpanOperation, opts ...SpanOption) (context.Context, trace.Span) {
	spanOpts := &spanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := string(operation)
	if spanOpts.target != "" {
		spanName = fmt.Sprintf("%s %s", operation, spanOpts.target)
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
