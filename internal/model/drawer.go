package model

import (
	"time"

	"github.com/google/uuid"
)

type DrawerEntry struct {
	ID        int64     `json:"id"`
	OrgID     string    `json:"org_id"`
	Username  string    `json:"username"`
	EventID   uuid.UUID `json:"event_id"`
	Rendered  string    `json:"rendered"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
