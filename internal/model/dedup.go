package model

import (
	"time"

	"github.com/google/uuid"
)

// DeduplicationRecord is unique on (EventTypeID, DeduplicationKey).
type DeduplicationRecord struct {
	EventTypeID      uuid.UUID
	DeduplicationKey string
	DeleteAfter      time.Time
}

// PayloadDetails holds a connector payload too large to travel on the transport.
type PayloadDetails struct {
	ID        int64
	EventID   uuid.UUID
	OrgID     string
	Contents  []byte
	CreatedAt time.Time
}
