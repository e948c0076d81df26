package postgres

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const spanKey = "scale:span"

// tracer is a gorm plugin which wraps every statement in a span.
type tracer struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func newTracer() *tracer {
	return &tracer{
		tracer: otel.Tracer("store/postgres"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemPostgreSQL,
		},
	}
}

func (*tracer) Name() string { return "scale:tracer" }

func (t *tracer) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	errs := []error{
		cb.Create().Before("gorm:create").Register("scale:before_create", t.start("create")),
		cb.Create().After("gorm:create").Register("scale:after_create", t.end),
		cb.Query().Before("gorm:query").Register("scale:before_query", t.start("query")),
		cb.Query().After("gorm:query").Register("scale:after_query", t.end),
		cb.Update().Before("gorm:update").Register("scale:before_update", t.start("update")),
		cb.Update().After("gorm:update").Register("scale:after_update", t.end),
		cb.Delete().Before("gorm:delete").Register("scale:before_delete", t.start("delete")),
		cb.Delete().After("gorm:delete").Register("scale:after_delete", t.end),
		cb.Raw().Before("gorm:raw").Register("scale:before_raw", t.start("raw")),
		cb.Raw().After("gorm:raw").Register("scale:after_raw", t.end),
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tracer) start(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := t.tracer.Start(db.Statement.Context, "gorm "+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(t.attrs...),
		)
		db.Statement.Context = ctx
		db.InstanceSet(spanKey, span)
	}
}

func (t *tracer) end(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(
		semconv.DBSQLTableKey.String(db.Statement.Table),
		semconv.DBStatementKey.String(db.Statement.SQL.String()),
	)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
}
