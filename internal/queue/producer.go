package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Producer appends envelopes to the inbound log.
type Producer interface {
	Enqueue(ctx context.Context, env Envelope) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewRedisProducer writes to stream. client is shared and stays open on Close.
func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{client: client, stream: stream, logger: logger}
}

// Enqueue starts env at attempt 1 unless it carries one. An envelope without
// a trace id inherits the trace of ctx.
func (p *redisProducer) Enqueue(ctx context.Context, env Envelope) error {
	if env.TraceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			env.TraceID = sc.TraceID().String()
		}
	}
	attempt := max(env.Attempt, 1)

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: envelopeValues(env, attempt),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd event (stream=%s): %w", p.stream, err)
	}

	p.logger.InfoContext(ctx, "event enqueued",
		"stream", p.stream,
		"entry_id", id,
		"event_id", env.EventID,
		"type", env.Type)
	return nil
}

func (p *redisProducer) Close() error { return nil }
