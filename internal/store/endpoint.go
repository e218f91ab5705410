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

type endpointStore struct {
	conn db.DBTX
}

func newEndpointStore(conn db.DBTX) EndpointStore {
	return &endpointStore{conn: conn}
}

const endpointColumns = `e.id, e.org_id, COALESCE(e.account_id, ''), e.name, e.endpoint_type,
	COALESCE(e.endpoint_sub_type, ''), e.enabled, e.server_errors, e.properties, e.created_at`

func (s *endpointStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Endpoint, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+endpointColumns+` FROM endpoints e WHERE e.id = $1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting endpoint %s: %w", id, err)
	}
	return ep, nil
}

func (s *endpointStore) ListForEventType(ctx context.Context, orgID string, eventTypeID uuid.UUID) ([]model.Endpoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM endpoints e
		JOIN event_type_endpoints ete ON ete.endpoint_id = e.id
		WHERE ete.org_id = $1 AND ete.event_type_id = $2
		ORDER BY e.created_at`,
		orgID, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	defer rows.Close()

	var result []model.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ep)
	}
	return result, rows.Err()
}

func (s *endpointStore) IncrementServerErrors(ctx context.Context, id uuid.UUID, max int) (bool, error) {
	var enabled bool
	err := s.conn.QueryRow(ctx, `
		UPDATE endpoints
		SET server_errors = server_errors + 1,
			enabled = CASE WHEN server_errors + 1 > $2 THEN FALSE ELSE enabled END
		WHERE id = $1
		RETURNING enabled`,
		id, max,
	).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("incrementing server errors for %s: %w", id, err)
	}
	return !enabled, nil
}

func (s *endpointStore) ResetServerErrors(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn.Exec(ctx, `UPDATE endpoints SET server_errors = 0 WHERE id = $1 AND server_errors > 0`, id)
	if err != nil {
		return fmt.Errorf("resetting server errors for %s: %w", id, err)
	}
	return nil
}

func (s *endpointStore) Disable(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn.Exec(ctx, `UPDATE endpoints SET enabled = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disabling endpoint %s: %w", id, err)
	}
	return nil
}

func scanEndpoint(row pgx.Row) (*model.Endpoint, error) {
	var (
		ep           model.Endpoint
		endpointType string
		properties   []byte
	)
	if err := row.Scan(&ep.ID, &ep.OrgID, &ep.AccountID, &ep.Name, &endpointType, &ep.SubType,
		&ep.Enabled, &ep.ServerErrors, &properties, &ep.CreatedAt); err != nil {
		return nil, err
	}
	ep.Type = model.EndpointType(endpointType)

	props, err := model.DecodeEndpointProperties(ep.Type, properties)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", ep.ID, err)
	}
	ep.Properties = props
	return &ep, nil
}
