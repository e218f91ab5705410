package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxPerCycle bounds how many entries one tick may claim; zero means 10 batches.
	MaxPerCycle int
}

// RedisReclaimer takes over entries a dead engine replica read but never
// settled, once they have been pending for MinIdle, and settles them through
// the worker's handler.
type RedisReclaimer struct {
	client   *redis.Client
	cfg      RedisReclaimerConfig
	consumer Consumer
	handler  MessageHandler

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer Consumer, handler MessageHandler) *RedisReclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = int(cfg.BatchSize) * 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		handler:   handler,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run claims on every Interval tick until ctx is done or Stop is called.
func (r *RedisReclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.worker.reclaimer"})
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started", "interval", r.cfg.Interval, "min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.ReclaimOnce(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim cycle failed", "error", err, "reclaimed", n)
			} else if n > 0 {
				slog.InfoContext(ctx, "reclaim cycle finished", "reclaimed", n)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce walks the pending entries list with XAUTOCLAIM and settles what
// it claims. It returns how many entries were handed to the handler.
func (r *RedisReclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	start := "0-0"
	handled := 0
	for handled < r.cfg.MaxPerCycle {
		claimed, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.MinIdle,
			Start:    start,
			Count:    r.cfg.BatchSize,
		}).Result()
		if err != nil {
			return handled, fmt.Errorf("xautoclaim (stream=%s): %w", r.cfg.Stream, err)
		}

		for _, raw := range claimed {
			r.settle(ctx, raw)
			handled++
		}

		if next == "0-0" || len(claimed) == 0 {
			break
		}
		start = next
	}
	return handled, nil
}

func (r *RedisReclaimer) settle(ctx context.Context, raw redis.XMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(raw.ID)})
	reclaimedTotal.Inc()

	msg, err := queue.ParseMessage(raw)
	if err != nil {
		// Acked so it stops cycling between replicas.
		slog.ErrorContext(ctx, "dropping unparsable reclaimed entry", "error", err)
		if ackErr := r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw}); ackErr != nil {
			slog.ErrorContext(ctx, "failed to ack unparsable entry", "error", ackErr)
		}
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(msg.Envelope.EventID)})
	if err := r.handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to settle reclaimed message", "error", err, "attempt", msg.Attempt())
	}
}
