package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/model"
)

type deduplicationStore struct {
	conn db.DBTX
}

func newDeduplicationStore(conn db.DBTX) DeduplicationStore {
	return &deduplicationStore{conn: conn}
}

const insertDeduplicationSQL = `
INSERT INTO event_deduplication (event_type_id, deduplication_key, delete_after)
VALUES ($1, $2, $3)
ON CONFLICT (event_type_id, deduplication_key) DO NOTHING`

func (s *deduplicationStore) Insert(ctx context.Context, rec model.DeduplicationRecord) (bool, error) {
	tag, err := s.conn.Exec(ctx, insertDeduplicationSQL, rec.EventTypeID, rec.DeduplicationKey, rec.DeleteAfter)
	if err != nil {
		return false, fmt.Errorf("inserting deduplication record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *deduplicationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM event_deduplication WHERE delete_after < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired deduplication records: %w", err)
	}
	return tag.RowsAffected(), nil
}

type inboundMessageStore struct {
	conn db.DBTX
}

func newInboundMessageStore(conn db.DBTX) InboundMessageStore {
	return &inboundMessageStore{conn: conn}
}

func (s *inboundMessageStore) Register(ctx context.Context, messageID uuid.UUID) (bool, error) {
	tag, err := s.conn.Exec(ctx,
		`INSERT INTO inbound_messages (id, created_at) VALUES ($1, NOW()) ON CONFLICT (id) DO NOTHING`,
		messageID)
	if err != nil {
		return false, fmt.Errorf("registering message id: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *inboundMessageStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM inbound_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting message ids: %w", err)
	}
	return tag.RowsAffected(), nil
}
