package store

import (
	"notifications.app/engine/core/db"
)

// Stores hands out stores bound to one DBTX: the pool, or a transaction inside db.WithTx.
type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Deduplication() DeduplicationStore {
	return newDeduplicationStore(s.conn)
}

func (s *Stores) InboundMessages() InboundMessageStore {
	return newInboundMessageStore(s.conn)
}

func (s *Stores) History() HistoryStore {
	return newHistoryStore(s.conn)
}

func (s *Stores) Endpoints() EndpointStore {
	return newEndpointStore(s.conn)
}

func (s *Stores) EventTypes() EventTypeStore {
	return newEventTypeStore(s.conn)
}

func (s *Stores) Subscriptions() SubscriptionStore {
	return newSubscriptionStore(s.conn)
}

func (s *Stores) Aggregations() AggregationStore {
	return newAggregationStore(s.conn)
}

func (s *Stores) Drawer() DrawerStore {
	return newDrawerStore(s.conn)
}

func (s *Stores) Payloads() PayloadStore {
	return newPayloadStore(s.conn)
}
