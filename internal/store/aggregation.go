package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/model"
)

type aggregationStore struct {
	conn db.DBTX
}

func newAggregationStore(conn db.DBTX) AggregationStore {
	return &aggregationStore{conn: conn}
}

func (s *aggregationStore) Insert(ctx context.Context, a *model.EmailAggregation) error {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO email_aggregation (id, org_id, bundle, application, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.Key.OrgID, a.Key.BundleName, a.Key.ApplicationName, []byte(a.Payload),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting aggregation: %w", err)
	}
	return nil
}

func (s *aggregationStore) ListKeys(ctx context.Context, cutoff time.Time) ([]model.EmailAggregationKey, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT org_id, bundle, application
		FROM email_aggregation
		WHERE created_at <= $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing aggregation keys: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EmailAggregationKey, error) {
		var k model.EmailAggregationKey
		err := row.Scan(&k.OrgID, &k.BundleName, &k.ApplicationName)
		return k, err
	})
}

func (s *aggregationStore) ListByKey(ctx context.Context, key model.EmailAggregationKey, cutoff time.Time) ([]model.EmailAggregation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, org_id, bundle, application, payload, created_at
		FROM email_aggregation
		WHERE org_id = $1 AND bundle = $2 AND application = $3 AND created_at <= $4
		ORDER BY created_at`,
		key.OrgID, key.BundleName, key.ApplicationName, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing aggregations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EmailAggregation, error) {
		var (
			a       model.EmailAggregation
			payload []byte
		)
		err := row.Scan(&a.ID, &a.Key.OrgID, &a.Key.BundleName, &a.Key.ApplicationName, &payload, &a.CreatedAt)
		a.Payload = payload
		return a, err
	})
}

func (s *aggregationStore) DeleteByKey(ctx context.Context, key model.EmailAggregationKey, olderThan time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `
		DELETE FROM email_aggregation
		WHERE org_id = $1 AND bundle = $2 AND application = $3 AND created_at <= $4`,
		key.OrgID, key.BundleName, key.ApplicationName, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging aggregations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *aggregationStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM email_aggregation`)
	if err != nil {
		return 0, fmt.Errorf("purging all aggregations: %w", err)
	}
	return tag.RowsAffected(), nil
}
