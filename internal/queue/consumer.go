package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notifications.app/engine/common/logger"
)

type ConsumerConfig struct {
	Stream       string        // inbound log
	Group        string        // consumer group shared by engine replicas
	Consumer     string        // this replica
	DLQStream    string        // where unprocessable entries end up
	BatchSize    int64         // entries per read
	Block        time.Duration // how long a read waits for new entries
	MaxAttempts  int           // attempts before an entry is dead-lettered
	RequeueDelay time.Duration // pause before a failed entry is re-appended
}

// Message is one envelope as delivered to this consumer.
type Message struct {
	ID       string // stream entry id
	Envelope Envelope
	Raw      redis.XMessage
}

func (m Message) Attempt() int {
	return m.Envelope.Attempt
}

// RedisConsumer reads the inbound log through a consumer group. A failed entry
// is acked and re-appended with its attempt counter bumped, so redelivery
// never depends on the pending entries list.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	c := &RedisConsumer{client: client, cfg: cfg}
	if err := c.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}
	return c, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// "0" so a recreated group still sees entries already in the stream.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Read returns the next batch of new entries. Entries that cannot be parsed
// are dead-lettered here and never returned.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.queue.consumer"})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" only delivers new entries; stale pending ones belong to the reclaimer.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup (stream=%s): %w", c.cfg.Stream, err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, parseErr := ParseMessage(raw)
			if parseErr != nil {
				c.deadLetterRaw(ctx, raw, parseErr)
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (c *RedisConsumer) deadLetterRaw(ctx context.Context, raw redis.XMessage, cause error) {
	values := make(map[string]any, len(raw.Values)+1)
	for k, v := range raw.Values {
		values[k] = v
	}
	values["error"] = fmt.Sprintf("%s: %v", ErrInvalidMessage, cause)

	if err := c.moveTo(ctx, raw.ID, c.cfg.DLQStream, values); err != nil {
		slog.ErrorContext(ctx, "failed to dead-letter unparsable entry", "error", err, "entry_id", raw.ID)
		return
	}
	slog.ErrorContext(ctx, "unparsable entry dead-lettered", "error", cause, "entry_id", raw.ID)
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue re-appends msg with the next attempt number after RequeueDelay.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	if c.cfg.RequeueDelay > 0 {
		timer := time.NewTimer(c.cfg.RequeueDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Left pending; the reclaimer picks it up.
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := msg.Attempt() + 1
	values := envelopeValues(msg.Envelope, next)
	if errMsg != "" {
		values["last_error"] = errMsg
	}
	if err := c.moveTo(ctx, msg.ID, c.cfg.Stream, values); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}

	slog.InfoContext(ctx, "message requeued", "next_attempt", next, "reason", errMsg)
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := envelopeValues(msg.Envelope, msg.Attempt())
	values["error"] = errMsg
	if err := c.moveTo(ctx, msg.ID, c.cfg.DLQStream, values); err != nil {
		return fmt.Errorf("dead-letter: %w", err)
	}

	slog.ErrorContext(ctx, "message dead-lettered", "final_error", errMsg, "dlq_stream", c.cfg.DLQStream)
	return nil
}

// moveTo acks entryID and appends values to stream in one MULTI, so an entry
// is never both acked and lost.
func (c *RedisConsumer) moveTo(ctx context.Context, entryID, stream string, values map[string]any) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, entryID)
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values})
		return nil
	})
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", entryID, stream, err)
	}
	return nil
}

// ParseMessage reads an envelope from stream fields. Only data is required.
func ParseMessage(raw redis.XMessage) (Message, error) {
	data := field(raw.Values, "data")
	if data == "" {
		return Message{}, errors.New("missing data field")
	}

	attempt := 1
	if s := field(raw.Values, "attempt"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Message{}, fmt.Errorf("parsing attempt %q: %w", s, err)
		}
		attempt = max(n, 1)
	}

	return Message{
		ID:  raw.ID,
		Raw: raw,
		Envelope: Envelope{
			EventID:   field(raw.Values, "id"),
			Source:    field(raw.Values, "source"),
			Type:      field(raw.Values, "type"),
			Data:      []byte(data),
			MessageID: field(raw.Values, "message_id"),
			TraceID:   field(raw.Values, "trace_id"),
			Attempt:   attempt,
		},
	}, nil
}

func field(values map[string]any, key string) string {
	v, ok := values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func envelopeValues(env Envelope, attempt int) map[string]any {
	values := map[string]any{
		"data":    string(env.Data),
		"attempt": attempt,
	}
	for key, v := range map[string]string{
		"id":         env.EventID,
		"source":     env.Source,
		"type":       env.Type,
		"message_id": env.MessageID,
		"trace_id":   env.TraceID,
	} {
		if v != "" {
			values[key] = v
		}
	}
	return values
}
