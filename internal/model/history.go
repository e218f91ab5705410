package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	StatusSuccess        NotificationStatus = "SUCCESS"
	StatusSent           NotificationStatus = "SENT"
	StatusProcessing     NotificationStatus = "PROCESSING"
	StatusFailedInternal NotificationStatus = "FAILED_INTERNAL"
	StatusFailedExternal NotificationStatus = "FAILED_EXTERNAL"
)

// Pending statuses are still waiting for a connector callback.
func (s NotificationStatus) Pending() bool {
	return s == StatusProcessing
}

func (s NotificationStatus) Failed() bool {
	return s == StatusFailedInternal || s == StatusFailedExternal
}

type NotificationHistory struct {
	ID               uuid.UUID          `json:"id"`
	EventID          uuid.UUID          `json:"event_id"`
	EndpointID       *uuid.UUID         `json:"endpoint_id,omitempty"`
	EndpointType     EndpointType       `json:"endpoint_type"`
	EndpointSubType  string             `json:"endpoint_sub_type,omitempty"`
	Status           NotificationStatus `json:"status"`
	InvocationTimeMs int64              `json:"invocation_time_ms"`
	Details          map[string]any     `json:"details,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        *time.Time         `json:"updated_at,omitempty"`
}

// NewHistory builds the row for one (event, endpoint) delivery attempt.
func NewHistory(historyID uuid.UUID, event Event, endpoint Endpoint, status NotificationStatus, invocation time.Duration) NotificationHistory {
	endpointID := endpoint.ID
	return NotificationHistory{
		ID:               historyID,
		EventID:          event.ID,
		EndpointID:       &endpointID,
		EndpointType:     endpoint.Type,
		EndpointSubType:  endpoint.SubType,
		Status:           status,
		InvocationTimeMs: invocation.Milliseconds(),
	}
}
