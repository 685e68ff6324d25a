package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/eclectech"

// SessionAttr is the span attribute naming the page session a span belongs to.
const SessionAttr = "eclectech.session"

type sessionKey struct{}

// Tracer returns the eclectech tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithSession tags ctx with a page session id. Spans started with
// [StartSpan] and loggers from [Logger] carry it.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the page session id of ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// StartSpan starts a span. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(SessionAttr, id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace id of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with the session id and the trace and
// span ids of ctx attached, where present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := SessionID(ctx); id != "" {
		l = l.With(slog.String("session", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
