package model

import (
	"encoding/json"
	"time"
)

// EmailAggregationKey groups digest rows. The tenant is identified by org id.
type EmailAggregationKey struct {
	OrgID           string `json:"org_id"`
	BundleName      string `json:"bundle"`
	ApplicationName string `json:"application"`
}

type EmailAggregation struct {
	ID        int64               `json:"id"`
	Key       EmailAggregationKey `json:"key"`
	Payload   json.RawMessage     `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}
