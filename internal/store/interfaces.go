package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyFinal is returned when a history row no longer accepts status updates.
var ErrAlreadyFinal = errors.New("history already final")

// DeduplicationStore holds the (event type, dedup key) gate.
type DeduplicationStore interface {
	// Insert reports true only when the record did not exist yet.
	Insert(ctx context.Context, rec model.DeduplicationRecord) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// InboundMessageStore holds message ids already consumed from the log.
type InboundMessageStore interface {
	Register(ctx context.Context, messageID uuid.UUID) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type HistoryStore interface {
	Create(ctx context.Context, h *model.NotificationHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.NotificationHistory, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.NotificationHistory, error)
	// CompletePending moves a PROCESSING row to status and merges details into it.
	CompletePending(ctx context.Context, id uuid.UUID, status model.NotificationStatus, details map[string]any) (*model.NotificationHistory, error)
}

type EndpointStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Endpoint, error)
	ListForEventType(ctx context.Context, orgID string, eventTypeID uuid.UUID) ([]model.Endpoint, error)
	// IncrementServerErrors bumps the counter and disables the endpoint once it exceeds max.
	IncrementServerErrors(ctx context.Context, id uuid.UUID, max int) (disabled bool, err error)
	ResetServerErrors(ctx context.Context, id uuid.UUID) error
	Disable(ctx context.Context, id uuid.UUID) error
}

type EventTypeStore interface {
	GetByName(ctx context.Context, bundle, application, name string) (*model.EventType, error)
}

type SubscriptionStore interface {
	ListUsernames(ctx context.Context, orgID string, eventTypeID uuid.UUID, subscriptionType model.SubscriptionType, subscribed bool) ([]string, error)
	// ListApplicationSubscribers returns users subscribed to any event type of the application.
	ListApplicationSubscribers(ctx context.Context, orgID, bundle, application string, subscriptionType model.SubscriptionType) ([]string, error)
}

type AggregationStore interface {
	Insert(ctx context.Context, a *model.EmailAggregation) error
	ListKeys(ctx context.Context, cutoff time.Time) ([]model.EmailAggregationKey, error)
	ListByKey(ctx context.Context, key model.EmailAggregationKey, cutoff time.Time) ([]model.EmailAggregation, error)
	DeleteByKey(ctx context.Context, key model.EmailAggregationKey, olderThan time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type DrawerStore interface {
	// Create ignores an entry already stored for the same (event, user).
	Create(ctx context.Context, entry *model.DrawerEntry) (bool, error)
}

type PayloadStore interface {
	Create(ctx context.Context, p *model.PayloadDetails) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*model.PayloadDetails, error)
}
