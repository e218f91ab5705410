package aggregation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"notifications.app/engine/common/id"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/store"
)

// Store accumulates digest rows. Writes never fail the caller: a lost row only
// shortens one digest.
type Store struct {
	rows   store.AggregationStore
	logger *slog.Logger
}

func NewStore(rows store.AggregationStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rows: rows, logger: logger}
}

// Add appends payload under key and reports whether it was stored.
func (s *Store) Add(ctx context.Context, key model.EmailAggregationKey, payload json.RawMessage) bool {
	row := &model.EmailAggregation{
		ID:      id.New(),
		Key:     key,
		Payload: payload,
	}
	if err := s.rows.Insert(ctx, row); err != nil {
		aggregationWritesTotal.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "failed to store aggregation",
			"error", err,
			"org_id", key.OrgID,
			"bundle", key.BundleName,
			"application", key.ApplicationName)
		return false
	}
	aggregationWritesTotal.WithLabelValues("stored").Inc()
	return true
}

// Purge deletes every row of key created at or before olderThan.
func (s *Store) Purge(ctx context.Context, key model.EmailAggregationKey, olderThan time.Time) (int64, error) {
	return s.rows.DeleteByKey(ctx, key, olderThan)
}

// PurgeAll empties the store.
func (s *Store) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.rows.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WarnContext(ctx, "all aggregations purged", "rows", n)
	return n, nil
}

func (s *Store) Keys(ctx context.Context, cutoff time.Time) ([]model.EmailAggregationKey, error) {
	return s.rows.ListKeys(ctx, cutoff)
}

func (s *Store) Rows(ctx context.Context, key model.EmailAggregationKey, cutoff time.Time) ([]model.EmailAggregation, error) {
	return s.rows.ListByKey(ctx, key, cutoff)
}
