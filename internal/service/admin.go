package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/store"
)

// AggregationPurger mirrors aggregation.Store.
type AggregationPurger interface {
	PurgeAll(ctx context.Context) (int64, error)
}

type AdminService interface {
	PurgeAggregations(ctx context.Context) (int64, error)
	// Payload returns the stored body of an event whose connector message was too large.
	Payload(ctx context.Context, eventID uuid.UUID) (*model.PayloadDetails, error)
}

type adminService struct {
	aggregations AggregationPurger
	payloads     store.PayloadStore
	logger       *slog.Logger
}

func NewAdminService(aggregations AggregationPurger, payloads store.PayloadStore, logger *slog.Logger) AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &adminService{aggregations: aggregations, payloads: payloads, logger: logger}
}

func (s *adminService) PurgeAggregations(ctx context.Context) (int64, error) {
	n, err := s.aggregations.PurgeAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WarnContext(ctx, "all email aggregations purged", "deleted", n)
	return n, nil
}

func (s *adminService) Payload(ctx context.Context, eventID uuid.UUID) (*model.PayloadDetails, error) {
	return s.payloads.GetByEventID(ctx, eventID)
}
