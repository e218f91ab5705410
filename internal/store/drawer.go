package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/model"
)

type drawerStore struct {
	conn db.DBTX
}

func newDrawerStore(conn db.DBTX) DrawerStore {
	return &drawerStore{conn: conn}
}

func (s *drawerStore) Create(ctx context.Context, entry *model.DrawerEntry) (bool, error) {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO drawer_notifications (id, org_id, username, event_id, rendered)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, username) DO NOTHING
		RETURNING created_at`,
		entry.ID, entry.OrgID, entry.Username, entry.EventID, entry.Rendered,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting drawer entry: %w", err)
	}
	return true, nil
}

type payloadStore struct {
	conn db.DBTX
}

func newPayloadStore(conn db.DBTX) PayloadStore {
	return &payloadStore{conn: conn}
}

func (s *payloadStore) Create(ctx context.Context, p *model.PayloadDetails) error {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO payload_details (id, event_id, org_id, contents)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.EventID, p.OrgID, p.Contents,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payload details: %w", err)
	}
	return nil
}

func (s *payloadStore) GetByEventID(ctx context.Context, eventID uuid.UUID) (*model.PayloadDetails, error) {
	var p model.PayloadDetails
	err := s.conn.QueryRow(ctx, `
		SELECT id, event_id, org_id, contents, created_at
		FROM payload_details WHERE event_id = $1
		ORDER BY created_at DESC LIMIT 1`, eventID,
	).Scan(&p.ID, &p.EventID, &p.OrgID, &p.Contents, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting payload for event %s: %w", eventID, err)
	}
	return &p, nil
}
