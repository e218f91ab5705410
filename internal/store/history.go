package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/model"
)

type historyStore struct {
	conn db.DBTX
}

func newHistoryStore(conn db.DBTX) HistoryStore {
	return &historyStore{conn: conn}
}

const historyColumns = `id, event_id, endpoint_id, endpoint_type, COALESCE(endpoint_sub_type, ''), status,
	invocation_time_ms, details, created_at, updated_at`

func (s *historyStore) Create(ctx context.Context, h *model.NotificationHistory) error {
	details, err := marshalDetails(h.Details)
	if err != nil {
		return err
	}

	err = s.conn.QueryRow(ctx, `
		INSERT INTO notification_history
			(id, event_id, endpoint_id, endpoint_type, endpoint_sub_type, status, invocation_time_ms, details)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING created_at`,
		h.ID, h.EventID, h.EndpointID, string(h.EndpointType), h.EndpointSubType, string(h.Status),
		h.InvocationTimeMs, details,
	).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting history %s: %w", h.ID, err)
	}
	return nil
}

func (s *historyStore) GetByID(ctx context.Context, id uuid.UUID) (*model.NotificationHistory, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+historyColumns+` FROM notification_history WHERE id = $1`, id)
	h, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting history %s: %w", id, err)
	}
	return h, nil
}

func (s *historyStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.NotificationHistory, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+historyColumns+` FROM notification_history WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing history for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var result []model.NotificationHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

func (s *historyStore) CompletePending(ctx context.Context, id uuid.UUID, status model.NotificationStatus, details map[string]any) (*model.NotificationHistory, error) {
	patch, err := marshalDetails(details)
	if err != nil {
		return nil, err
	}

	row := s.conn.QueryRow(ctx, `
		UPDATE notification_history
		SET status = $2,
			details = COALESCE(details, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb),
			updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING `+historyColumns,
		id, string(status), patch, string(model.StatusProcessing))

	h, err := scanHistory(row)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("completing history %s: %w", id, err)
	}

	// Nothing updated: either the row does not exist or it is no longer pending.
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyFinal
}

func scanHistory(row pgx.Row) (*model.NotificationHistory, error) {
	var (
		h            model.NotificationHistory
		endpointType string
		status       string
		details      []byte
	)
	if err := row.Scan(&h.ID, &h.EventID, &h.EndpointID, &endpointType, &h.EndpointSubType, &status,
		&h.InvocationTimeMs, &details, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.EndpointType = model.EndpointType(endpointType)
	h.Status = model.NotificationStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &h.Details); err != nil {
			return nil, fmt.Errorf("decoding history details: %w", err)
		}
	}
	return &h, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encoding history details: %w", err)
	}
	return b, nil
}
