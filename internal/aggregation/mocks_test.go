package aggregation_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/internal/mail"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
)

// memoryAggregations stamps rows with the current value of now.
type memoryAggregations struct {
	mu        sync.Mutex
	rows      []model.EmailAggregation
	now       time.Time
	insertErr error
}

func (m *memoryAggregations) Insert(_ context.Context, a *model.EmailAggregation) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = m.now
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memoryAggregations) ListKeys(_ context.Context, cutoff time.Time) ([]model.EmailAggregationKey, error) {
	seen := map[model.EmailAggregationKey]bool{}
	var keys []model.EmailAggregationKey
	for _, r := range m.rows {
		if !r.CreatedAt.After(cutoff) && !seen[r.Key] {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
	}
	return keys, nil
}

func (m *memoryAggregations) ListByKey(_ context.Context, key model.EmailAggregationKey, cutoff time.Time) ([]model.EmailAggregation, error) {
	var out []model.EmailAggregation
	for _, r := range m.rows {
		if r.Key == key && !r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryAggregations) DeleteByKey(_ context.Context, key model.EmailAggregationKey, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, r := range m.rows {
		if r.Key == key && !r.CreatedAt.After(olderThan) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

func (m *memoryAggregations) DeleteAll(context.Context) (int64, error) {
	n := int64(len(m.rows))
	m.rows = nil
	return n, nil
}

type mockSubscriptions struct {
	applicationFn func(ctx context.Context, orgID, bundle, application string, t model.SubscriptionType) ([]string, error)
}

func (m *mockSubscriptions) ListUsernames(context.Context, string, uuid.UUID, model.SubscriptionType, bool) ([]string, error) {
	return nil, errors.New("not expected")
}

func (m *mockSubscriptions) ListApplicationSubscribers(ctx context.Context, orgID, bundle, application string, t model.SubscriptionType) ([]string, error) {
	return m.applicationFn(ctx, orgID, bundle, application, t)
}

type mockResolver struct {
	resolveFn func(ctx context.Context, req recipients.Request) ([]model.User, error)
}

func (m *mockResolver) Resolve(ctx context.Context, req recipients.Request) ([]model.User, error) {
	return m.resolveFn(ctx, req)
}

type mockRenderer struct {
	renderFn func(ctx context.Context, req render.Request) (render.Rendered, error)
}

func (m *mockRenderer) Render(ctx context.Context, req render.Request) (render.Rendered, error) {
	return m.renderFn(ctx, req)
}

type recordingMailer struct {
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type recordingProducer struct {
	envelopes []queue.Envelope
}

func (p *recordingProducer) Enqueue(_ context.Context, env queue.Envelope) error {
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *recordingProducer) Close() error { return nil }
