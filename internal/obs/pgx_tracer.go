package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const pgxTracerName = "modelshop.pgx"

type pgxSpanKey struct{}

// PGXTracer implements pgx.QueryTracer and pgx.ConnectTracer so coupon
// lookups and pool dials appear in request traces.
type PGXTracer struct{}

var (
	_ pgx.QueryTracer   = PGXTracer{}
	_ pgx.ConnectTracer = PGXTracer{}
)

func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	stmt := strings.TrimSpace(data.SQL)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(stmt)),
		attribute.Int("db.args", len(data.Args)),
	}
	name := "pgx.query"
	if fields := strings.Fields(stmt); len(fields) > 0 {
		op := strings.ToUpper(fields[0])
		attrs = append(attrs, attribute.String("db.operation", op))
		name = "pgx." + strings.ToLower(op)
	}
	ctx, span := otel.Tracer(pgxTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

// TraceQueryEnd ends the query span. A lookup miss is not an error.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	endSpan(ctx, data.Err, attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

func (PGXTracer) TraceConnectStart(ctx context.Context, data pgx.TraceConnectStartData) context.Context {
	var attrs []attribute.KeyValue
	if data.ConnConfig != nil {
		attrs = append(attrs,
			attribute.String("db.system", "postgresql"),
			attribute.String("net.peer.name", data.ConnConfig.Host),
			attribute.String("db.name", data.ConnConfig.Database),
		)
	}
	ctx, span := otel.Tracer(pgxTracerName).Start(ctx, "pgx.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

func (PGXTracer) TraceConnectEnd(ctx context.Context, data pgx.TraceConnectEndData) {
	endSpan(ctx, data.Err)
}

func endSpan(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span, ok := ctx.Value(pgxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pgx failed")
	} else {
		span.SetAttributes(attrs...)
	}
	span.End()
}

func truncateSQL(sql string) string {
	const limit = 300
	if len(sql) > limit {
		return sql[:limit] + "..."
	}
	return sql
}
