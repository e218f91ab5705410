package service

import (
	"context"

	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/store"
)

// StoreProvider is the slice of store.Stores a unit of work may touch: the
// ingestion gates and delivery bookkeeping.
type StoreProvider interface {
	Deduplication() store.DeduplicationStore
	InboundMessages() store.InboundMessageStore
	History() store.HistoryStore
	Endpoints() store.EndpointStore
}

// TxRunner hands fn stores bound to a single transaction. fn's error rolls it back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type pgTxRunner struct {
	database *db.DB
}

func NewTxRunner(database *db.DB) TxRunner {
	return pgTxRunner{database: database}
}

func (r pgTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.database.WithTx(ctx, func(tx db.DBTX) error {
		return fn(store.NewStores(tx))
	})
}
