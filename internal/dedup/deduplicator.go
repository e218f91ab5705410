package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/store"
)

// Deduplicator gates events on their (event type, dedup key) pair.
type Deduplicator interface {
	// IsNew records the event and reports whether it was seen for the first time.
	IsNew(ctx context.Context, event model.Event) (bool, error)
}

type deduplicator struct {
	store    store.DeduplicationStore
	configs  map[string]KeyConfig
	fallback KeyConfig
	logger   *slog.Logger
}

func NewDeduplicator(s store.DeduplicationStore, logger *slog.Logger) Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &deduplicator{
		store: s,
		configs: map[string]KeyConfig{
			configKey(SubscriptionsBundle, SubscriptionsApplication): SubscriptionsConfig{},
		},
		fallback: DefaultConfig{},
		logger:   logger,
	}
}

func configKey(bundle, application string) string {
	return bundle + "/" + application
}

func (d *deduplicator) record(event model.Event) model.DeduplicationRecord {
	if cfg, ok := d.configs[configKey(event.EventType.BundleName, event.EventType.ApplicationName)]; ok {
		if rec, ok := cfg.Record(event); ok {
			return rec
		}
	}
	rec, _ := d.fallback.Record(event)
	return rec
}

func (d *deduplicator) IsNew(ctx context.Context, event model.Event) (bool, error) {
	rec := d.record(event)

	inserted, err := d.store.Insert(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("deduplicating event %s: %w", event.ID, err)
	}
	if !inserted {
		duplicatesTotal.WithLabelValues(event.EventType.BundleName, event.EventType.ApplicationName).Inc()
		d.logger.InfoContext(ctx, "duplicate event dropped",
			"event_type", event.EventType.FQN(),
			"deduplication_key", rec.DeduplicationKey)
	}
	return inserted, nil
}

// MessageGate drops log messages whose id was already consumed. Only UUID v4
// ids take part; a missing or malformed id lets the message through.
type MessageGate struct {
	store  store.InboundMessageStore
	logger *slog.Logger
}

func NewMessageGate(s store.InboundMessageStore, logger *slog.Logger) *MessageGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageGate{store: s, logger: logger}
}

// ParseMessageID returns the id when raw is a valid UUID v4.
func ParseMessageID(raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := uuid.Parse(raw)
	if err != nil || u.Version() != 4 {
		return nil, false
	}
	return &u, true
}

// Admit reports whether the message must be processed.
func (g *MessageGate) Admit(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		messageIDsTotal.WithLabelValues("missing").Inc()
		return true, nil
	}
	id, ok := ParseMessageID(raw)
	if !ok {
		messageIDsTotal.WithLabelValues("invalid").Inc()
		g.logger.WarnContext(ctx, "invalid message id", "message_id", raw)
		return true, nil
	}
	messageIDsTotal.WithLabelValues("valid").Inc()

	registered, err := g.store.Register(ctx, *id)
	if err != nil {
		return false, fmt.Errorf("registering message id %s: %w", id, err)
	}
	if !registered {
		g.logger.InfoContext(ctx, "message already processed", "message_id", id.String())
	}
	return registered, nil
}

// Sweeper removes expired deduplication state.
type Sweeper struct {
	dedup      store.DeduplicationStore
	messages   store.InboundMessageStore
	messageTTL time.Duration
	logger     *slog.Logger
}

func NewSweeper(dedup store.DeduplicationStore, messages store.InboundMessageStore, messageTTL time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{dedup: dedup, messages: messages, messageTTL: messageTTL, logger: logger}
}

func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	records, err := s.dedup.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}

	var messages int64
	if s.messageTTL > 0 {
		messages, err = s.messages.DeleteOlderThan(ctx, now.Add(-s.messageTTL))
		if err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "deduplication sweep finished",
		"records_deleted", records,
		"message_ids_deleted", messages)
	return nil
}
