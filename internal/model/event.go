package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregationBundle      = "console"
	AggregationApplication = "notifications"
	AggregationEventType   = "aggregation"
)

type EventType struct {
	ID                  uuid.UUID `json:"id"`
	BundleName          string    `json:"bundle_name"`
	ApplicationName     string    `json:"application_name"`
	Name                string    `json:"name"`
	DisplayName         string    `json:"display_name"`
	SubscribedByDefault bool      `json:"subscribed_by_default"`
}

// FQN is the bundle/application/event-type triplet.
func (t EventType) FQN() string {
	return fmt.Sprintf("%s/%s/%s", t.BundleName, t.ApplicationName, t.Name)
}

// Action is the data section of an inbound event envelope.
type Action struct {
	ID          *uuid.UUID        `json:"id,omitempty"`
	Bundle      string            `json:"bundle"`
	Application string            `json:"application"`
	EventType   string            `json:"event_type"`
	OrgID       string            `json:"org_id"`
	AccountID   string            `json:"account_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Context     json.RawMessage   `json:"context,omitempty"`
	Events      []json.RawMessage `json:"events,omitempty"`
	Recipients  []ActionRecipient `json:"recipients,omitempty"`
}

type ActionRecipient struct {
	OnlyAdmins            bool       `json:"only_admins"`
	IgnoreUserPreferences bool       `json:"ignore_user_preferences"`
	GroupID               *uuid.UUID `json:"group_id,omitempty"`
	Users                 []string   `json:"users,omitempty"`
}

// Event is immutable once built by the ingestion step.
type Event struct {
	ID         uuid.UUID
	EventType  EventType
	OrgID      string
	AccountID  string
	Timestamp  time.Time
	Payload    json.RawMessage // the raw Action
	Context    json.RawMessage
	Recipients []RecipientSettings
	MessageID  *uuid.UUID
	TraceID    string
}

func (e Event) EventTypeID() uuid.UUID {
	return e.EventType.ID
}

// IsAggregation reports whether the event asks for a digest to be sent.
func (e Event) IsAggregation() bool {
	return e.EventType.BundleName == AggregationBundle &&
		e.EventType.ApplicationName == AggregationApplication &&
		e.EventType.Name == AggregationEventType
}

// NewEvent builds an Event from a parsed Action. The event id comes from the
// action when present, otherwise a random one is assigned.
func NewEvent(eventType EventType, action Action, raw json.RawMessage) Event {
	eventID := uuid.New()
	if action.ID != nil {
		eventID = *action.ID
	}

	ts := action.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	settings := make([]RecipientSettings, 0, len(action.Recipients))
	for _, r := range action.Recipients {
		settings = append(settings, NewRecipientSettings(r.OnlyAdmins, r.IgnoreUserPreferences, r.GroupID, r.Users))
	}

	return Event{
		ID:         eventID,
		EventType:  eventType,
		OrgID:      action.OrgID,
		AccountID:  action.AccountID,
		Timestamp:  ts,
		Payload:    raw,
		Context:    action.Context,
		Recipients: settings,
	}
}
