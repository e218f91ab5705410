// Package connector holds the per-channel delivery strategies and the table
// that selects one for an endpoint.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
)

// ErrUnknownConnector means no connector is registered for an endpoint's type and subtype.
var ErrUnknownConnector = errors.New("unknown connector")

type Request struct {
	Event     model.Event
	Endpoint  model.Endpoint
	HistoryID uuid.UUID
	// Users is filled for recipient-based connectors before Send.
	Users []model.User
}

// Result is what the history row records. A connector returning an error may
// still set Status to report an external failure; otherwise the failure is
// recorded as internal.
type Result struct {
	Status  model.NotificationStatus
	Details map[string]any
}

type Connector interface {
	Name() string
	Send(ctx context.Context, req Request) (Result, error)
}

// RecipientConnector delivers to resolved users. resolve is false when the
// send needs no recipients.
type RecipientConnector interface {
	Connector
	RecipientRequest(ctx context.Context, event model.Event, endpoint model.Endpoint) (req recipients.Request, resolve bool, err error)
}

type Key struct {
	Type    model.EndpointType
	SubType string
}

func (k Key) String() string {
	if k.SubType == "" {
		return string(k.Type)
	}
	return string(k.Type) + ":" + k.SubType
}

// Registry maps (type, subtype) to a connector. A connector registered with
// an empty subtype serves every subtype of its type.
type Registry struct {
	mu         sync.RWMutex
	connectors map[Key]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: map[Key]Connector{}}
}

func (r *Registry) Register(t model.EndpointType, subType string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[Key{Type: t, SubType: subType}] = c
}

func (r *Registry) Lookup(endpoint model.Endpoint) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := Key{Type: endpoint.Type, SubType: endpoint.SubType}
	if c, ok := r.connectors[key]; ok {
		return c, nil
	}
	if c, ok := r.connectors[Key{Type: endpoint.Type}]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, key)
}
