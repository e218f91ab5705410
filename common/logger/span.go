package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "notifications.app/engine"

// Span keeps an OTel span next to the context that carries it.
//
//	span := logger.StartSpan(ctx, "dispatch.deliver")
//	defer span.End()
//	ctx = span.Context()
type Span struct {
	ctx  context.Context
	span trace.Span
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *Span {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &Span{ctx: ctx, span: span}
}

// StartSpanFromTraceID continues the trace whose hex id travelled with a
// queue message. An empty or malformed id starts a new root span.
func StartSpanFromTraceID(ctx context.Context, traceID string, name string, opts ...trace.SpanStartOption) *Span {
	if parent, ok := remoteParent(traceID); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: parent}))
	}
	return StartSpan(ctx, name, opts...)
}

func remoteParent(raw string) (trace.SpanContext, bool) {
	if raw == "" {
		return trace.SpanContext{}, false
	}
	id, err := trace.TraceIDFromHex(raw)
	if err != nil {
		return trace.SpanContext{}, false
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    id,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

func (s *Span) Context() context.Context {
	return s.ctx
}

// SetAttributes tags the span; string pairs only, which covers ids and types.
func (s *Span) SetAttributes(kv ...string) {
	if s.span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	s.span.SetAttributes(attrs...)
}

// RecordError marks the span failed. A nil error is ignored.
func (s *Span) RecordError(err error) {
	if s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End is safe to call more than once.
func (s *Span) End() {
	if s.span != nil {
		s.span.End()
	}
}
