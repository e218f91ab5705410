package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/model"
)

// StatusUpdate is what a connector service reports for one pending delivery.
type StatusUpdate struct {
	HistoryID  uuid.UUID
	Successful bool
	// Sent is set when the destination accepted the message without confirming delivery.
	Sent    bool
	Details map[string]any
}

type DeliveryStatusService interface {
	// Complete finalizes a pending history row. It returns store.ErrNotFound for
	// an unknown row and store.ErrAlreadyFinal when the row was completed before.
	Complete(ctx context.Context, update StatusUpdate) (*model.NotificationHistory, error)
}

type deliveryStatusService struct {
	txRunner        TxRunner
	maxServerErrors int
	logger          *slog.Logger
}

func NewDeliveryStatusService(txRunner TxRunner, maxServerErrors int, logger *slog.Logger) DeliveryStatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &deliveryStatusService{txRunner: txRunner, maxServerErrors: maxServerErrors, logger: logger}
}

func (s *deliveryStatusService) Complete(ctx context.Context, update StatusUpdate) (*model.NotificationHistory, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		HistoryID: logger.Ptr(update.HistoryID.String()),
		Component: "notifications.service.delivery_status",
	})

	status := model.StatusFailedExternal
	switch {
	case update.Successful && update.Sent:
		status = model.StatusSent
	case update.Successful:
		status = model.StatusSuccess
	}

	var completed *model.NotificationHistory
	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		h, err := sp.History().CompletePending(ctx, update.HistoryID, status, update.Details)
		if err != nil {
			return err
		}
		completed = h

		if h.EndpointID == nil {
			return nil
		}
		if update.Successful {
			return sp.Endpoints().ResetServerErrors(ctx, *h.EndpointID)
		}
		disabled, err := sp.Endpoints().IncrementServerErrors(ctx, *h.EndpointID, s.maxServerErrors)
		if err != nil {
			return fmt.Errorf("counting endpoint failure: %w", err)
		}
		if disabled {
			s.logger.InfoContext(ctx, "endpoint disabled after repeated connector failures",
				"endpoint_id", h.EndpointID.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	statusUpdatesTotal.WithLabelValues(string(status)).Inc()
	s.logger.InfoContext(ctx, "delivery status recorded", "status", status)
	return completed, nil
}
