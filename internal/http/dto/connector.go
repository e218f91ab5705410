package dto

import "encoding/json"

// ConnectorStatusRequest is posted by a connector service once it has tried a delivery.
type ConnectorStatusRequest struct {
	HistoryID  string         `json:"history_id" binding:"required,uuid"`
	Successful *bool          `json:"successful" binding:"required"`
	Outcome    string         `json:"outcome,omitempty"`
	Sent       bool           `json:"sent,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

type ConnectorStatusResponse struct {
	HistoryID string `json:"history_id"`
	Status    string `json:"status"`
}

type PayloadResponse struct {
	EventID string          `json:"event_id"`
	OrgID   string          `json:"org_id"`
	Payload json.RawMessage `json:"payload"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}
