package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"notifications.app/engine/core/config"
)

// Setup installs the process-wide slog default and returns it.
// Production ships records through the OTel bridge when an endpoint is
// configured and JSON to stdout otherwise; development uses text.
func Setup(cfg config.Config) *slog.Logger {
	l := slog.New(newHandler(cfg, os.Stdout)).With("service", cfg.OTel.ServiceName)
	slog.SetDefault(l)
	return l
}

func newHandler(cfg config.Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel, cfg.IsDevelopment())}

	switch {
	case cfg.IsProduction() && cfg.OTel.Enabled():
		// The bridge correlates spans itself; only the context fields are added.
		return &TraceHandler{
			Handler:  otelslog.NewHandler(cfg.OTel.ServiceName, otelslog.WithLoggerProvider(global.GetLoggerProvider())),
			noTraces: true,
		}
	case cfg.IsProduction():
		return NewTraceHandler(slog.NewJSONHandler(w, opts))
	default:
		return NewTraceHandler(slog.NewTextHandler(w, opts))
	}
}

// ParseLevel maps LOG_LEVEL to a slog level. Unset means debug in development
// and info elsewhere.
func ParseLevel(raw string, development bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if development {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TraceHandler adds the active span ids and the context LogFields to every record.
type TraceHandler struct {
	slog.Handler
	noTraces bool
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.noTraces {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	r.AddAttrs(GetLogFields(ctx).attrs()...)
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs), noTraces: h.noTraces}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name), noTraces: h.noTraces}
}
