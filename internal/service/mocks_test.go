package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/service"
	"notifications.app/engine/internal/store"
)

type memoryDedup struct {
	mu   sync.Mutex
	keys map[string]model.DeduplicationRecord
}

func (m *memoryDedup) Insert(_ context.Context, rec model.DeduplicationRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]model.DeduplicationRecord{}
	}
	k := rec.EventTypeID.String() + "/" + rec.DeduplicationKey
	if _, ok := m.keys[k]; ok {
		return false, nil
	}
	m.keys[k] = rec
	return true, nil
}

func (m *memoryDedup) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type memoryMessages struct {
	mu  sync.Mutex
	ids map[uuid.UUID]bool
}

func (m *memoryMessages) Register(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[uuid.UUID]bool{}
	}
	if m.ids[id] {
		return false, nil
	}
	m.ids[id] = true
	return true, nil
}

func (m *memoryMessages) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type mockHistory struct {
	completeFn func(ctx context.Context, id uuid.UUID, status model.NotificationStatus, details map[string]any) (*model.NotificationHistory, error)
}

func (m *mockHistory) Create(context.Context, *model.NotificationHistory) error {
	return errors.New("not expected")
}

func (m *mockHistory) GetByID(context.Context, uuid.UUID) (*model.NotificationHistory, error) {
	return nil, errors.New("not expected")
}

func (m *mockHistory) ListByEvent(context.Context, uuid.UUID) ([]model.NotificationHistory, error) {
	return nil, errors.New("not expected")
}

func (m *mockHistory) CompletePending(ctx context.Context, id uuid.UUID, status model.NotificationStatus, details map[string]any) (*model.NotificationHistory, error) {
	return m.completeFn(ctx, id, status, details)
}

type mockEndpoints struct {
	listFn     func(ctx context.Context, orgID string, eventTypeID uuid.UUID) ([]model.Endpoint, error)
	resets     []uuid.UUID
	increments []uuid.UUID
}

func (m *mockEndpoints) GetByID(context.Context, uuid.UUID) (*model.Endpoint, error) {
	return nil, store.ErrNotFound
}

func (m *mockEndpoints) ListForEventType(ctx context.Context, orgID string, eventTypeID uuid.UUID) ([]model.Endpoint, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx, orgID, eventTypeID)
}

func (m *mockEndpoints) IncrementServerErrors(_ context.Context, id uuid.UUID, _ int) (bool, error) {
	m.increments = append(m.increments, id)
	return false, nil
}

func (m *mockEndpoints) ResetServerErrors(_ context.Context, id uuid.UUID) error {
	m.resets = append(m.resets, id)
	return nil
}

func (m *mockEndpoints) Disable(context.Context, uuid.UUID) error { return nil }

type mockEventTypes struct {
	getFn func(ctx context.Context, bundle, application, name string) (*model.EventType, error)
}

func (m *mockEventTypes) GetByName(ctx context.Context, bundle, application, name string) (*model.EventType, error) {
	return m.getFn(ctx, bundle, application, name)
}

type mockStoreProvider struct {
	dedup     store.DeduplicationStore
	messages  store.InboundMessageStore
	history   store.HistoryStore
	endpoints store.EndpointStore
}

func (m *mockStoreProvider) Deduplication() store.DeduplicationStore    { return m.dedup }
func (m *mockStoreProvider) InboundMessages() store.InboundMessageStore { return m.messages }
func (m *mockStoreProvider) History() store.HistoryStore                { return m.history }
func (m *mockStoreProvider) Endpoints() store.EndpointStore             { return m.endpoints }

type mockTxRunner struct {
	provider *mockStoreProvider
	withTxFn func(ctx context.Context, fn func(stores service.StoreProvider) error) error
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(stores service.StoreProvider) error) error {
	if m.withTxFn != nil {
		return m.withTxFn(ctx, fn)
	}
	return fn(m.provider)
}

type dispatchCall struct {
	event     model.Event
	endpoints []model.Endpoint
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.Event, endpoints []model.Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{event: event, endpoints: endpoints})
	return d.err
}

type recordingDigests struct {
	events []model.Event
	err    error
}

func (d *recordingDigests) SendDigestForEvent(_ context.Context, event model.Event) error {
	d.events = append(d.events, event)
	return d.err
}
