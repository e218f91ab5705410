package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// LogFields ride on the context and are added to every record logged with it.
type LogFields struct {
	EventID    *string
	OrgID      *string // tenant
	EndpointID *string
	HistoryID  *string
	MessageID  *string // stream entry id
	EventType  *string // bundle/application/event_type
	Component  string  // e.g. "notifications.dispatch.dispatcher"
}

// WithLogFields merges fields into those already on ctx. Set fields win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	for _, f := range []struct{ dst, src **string }{
		{&merged.EventID, &fields.EventID},
		{&merged.OrgID, &fields.OrgID},
		{&merged.EndpointID, &fields.EndpointID},
		{&merged.HistoryID, &fields.HistoryID},
		{&merged.MessageID, &fields.MessageID},
		{&merged.EventType, &fields.EventType},
	} {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, contextKey{}, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	fields, _ := ctx.Value(contextKey{}).(LogFields)
	return fields
}

func (f LogFields) attrs() []slog.Attr {
	var attrs []slog.Attr
	add := func(key string, v *string) {
		if v != nil {
			attrs = append(attrs, slog.String(key, *v))
		}
	}
	add("event_id", f.EventID)
	add("org_id", f.OrgID)
	add("endpoint_id", f.EndpointID)
	add("history_id", f.HistoryID)
	add("message_id", f.MessageID)
	add("event_type", f.EventType)
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}

// Ptr is for inline LogFields: logger.LogFields{OrgID: logger.Ptr(orgID)}.
func Ptr[T any](v T) *T {
	return &v
}
