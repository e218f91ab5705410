package dedup

import (
	"encoding/json"
	"time"

	"notifications.app/engine/internal/model"
)

// KeyConfig decides the deduplication key and retention of an event. ok is
// false when the event lacks what the config needs.
type KeyConfig interface {
	Record(event model.Event) (rec model.DeduplicationRecord, ok bool)
}

// DefaultConfig keys on the event id and keeps the record for one day.
type DefaultConfig struct{}

func (DefaultConfig) Record(event model.Event) (model.DeduplicationRecord, bool) {
	return model.DeduplicationRecord{
		EventTypeID:      event.EventTypeID(),
		DeduplicationKey: event.ID.String(),
		DeleteAfter:      event.Timestamp.UTC().Add(24 * time.Hour),
	}, true
}

const (
	SubscriptionsBundle      = "subscription-services"
	SubscriptionsApplication = "subscriptions"
)

// SubscriptionsConfig allows one usage event per org, product, metric and
// billing account each calendar month.
type SubscriptionsConfig struct{}

type subscriptionsKey struct {
	OrgID            string `json:"orgId"`
	ProductID        string `json:"productId"`
	MetricID         string `json:"metricId"`
	BillingAccountID string `json:"billingAccountId"`
	Month            string `json:"month"`
}

func (SubscriptionsConfig) Record(event model.Event) (model.DeduplicationRecord, bool) {
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return model.DeduplicationRecord{}, false
	}
	var eventContext map[string]any
	if len(event.Context) > 0 {
		_ = json.Unmarshal(event.Context, &eventContext)
	}

	ts := event.Timestamp.UTC()
	key := subscriptionsKey{
		OrgID:            firstString(payload, "orgId", "org_id"),
		ProductID:        firstString(payload, "productId"),
		MetricID:         firstString(payload, "metricId"),
		BillingAccountID: firstString(payload, "billingAccountId"),
		Month:            ts.Format("2006-01"),
	}
	if key.OrgID == "" {
		key.OrgID = event.OrgID
	}
	if key.ProductID == "" {
		key.ProductID = firstString(eventContext, "product_id")
	}
	if key.MetricID == "" {
		key.MetricID = firstString(eventContext, "metric_id")
	}
	if key.BillingAccountID == "" {
		key.BillingAccountID = firstString(eventContext, "billing_account_id")
	}
	if key.OrgID == "" || key.ProductID == "" || key.MetricID == "" || key.BillingAccountID == "" {
		return model.DeduplicationRecord{}, false
	}

	b, err := json.Marshal(key)
	if err != nil {
		return model.DeduplicationRecord{}, false
	}

	return model.DeduplicationRecord{
		EventTypeID:      event.EventTypeID(),
		DeduplicationKey: string(b),
		DeleteAfter:      time.Date(ts.Year(), ts.Month()+1, 1, 0, 0, 0, 0, time.UTC),
	}, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
