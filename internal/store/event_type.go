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

type eventTypeStore struct {
	conn db.DBTX
}

func newEventTypeStore(conn db.DBTX) EventTypeStore {
	return &eventTypeStore{conn: conn}
}

func (s *eventTypeStore) GetByName(ctx context.Context, bundle, application, name string) (*model.EventType, error) {
	var et model.EventType
	err := s.conn.QueryRow(ctx, `
		SELECT id, bundle_name, application_name, name, display_name, subscribed_by_default
		FROM event_types
		WHERE bundle_name = $1 AND application_name = $2 AND name = $3`,
		bundle, application, name,
	).Scan(&et.ID, &et.BundleName, &et.ApplicationName, &et.Name, &et.DisplayName, &et.SubscribedByDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting event type %s/%s/%s: %w", bundle, application, name, err)
	}
	return &et, nil
}

type subscriptionStore struct {
	conn db.DBTX
}

func newSubscriptionStore(conn db.DBTX) SubscriptionStore {
	return &subscriptionStore{conn: conn}
}

func (s *subscriptionStore) ListUsernames(ctx context.Context, orgID string, eventTypeID uuid.UUID, subscriptionType model.SubscriptionType, subscribed bool) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT username FROM email_subscriptions
		WHERE org_id = $1 AND event_type_id = $2 AND subscription_type = $3 AND subscribed = $4`,
		orgID, eventTypeID, string(subscriptionType), subscribed)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *subscriptionStore) ListApplicationSubscribers(ctx context.Context, orgID, bundle, application string, subscriptionType model.SubscriptionType) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT es.username
		FROM email_subscriptions es
		JOIN event_types et ON et.id = es.event_type_id
		WHERE es.org_id = $1 AND et.bundle_name = $2 AND et.application_name = $3
			AND es.subscription_type = $4 AND es.subscribed`,
		orgID, bundle, application, string(subscriptionType))
	if err != nil {
		return nil, fmt.Errorf("listing application subscribers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
