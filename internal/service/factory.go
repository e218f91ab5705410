package service

import (
	"log/slog"

	"notifications.app/engine/internal/store"
)

type Services struct {
	stores          *store.Stores
	txRunner        TxRunner
	aggregations    AggregationPurger
	maxServerErrors int
	logger          *slog.Logger
}

func NewServices(stores *store.Stores, txRunner TxRunner, aggregations AggregationPurger, maxServerErrors int, logger *slog.Logger) *Services {
	return &Services{
		stores:          stores,
		txRunner:        txRunner,
		aggregations:    aggregations,
		maxServerErrors: maxServerErrors,
		logger:          logger,
	}
}

func (s *Services) DeliveryStatus() DeliveryStatusService {
	return NewDeliveryStatusService(s.txRunner, s.maxServerErrors, s.logger)
}

func (s *Services) Admin() AdminService {
	return NewAdminService(s.aggregations, s.stores.Payloads(), s.logger)
}
