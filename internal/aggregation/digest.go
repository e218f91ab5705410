package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/mail"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
	"notifications.app/engine/internal/store"
)

// DigestContext is carried by aggregation events to request one digest.
type DigestContext struct {
	BundleName      string    `json:"bundle"`
	ApplicationName string    `json:"application"`
	EndTime         time.Time `json:"end_time"`
}

// DigestJob drains the store: one rendered email per key, then a purge up to the cutoff.
type DigestJob struct {
	store         *Store
	subscriptions store.SubscriptionStore
	resolver      recipients.Resolver
	renderer      render.Renderer
	mailer        mail.Sender
	producer      queue.Producer // set when digests are sent by the engine
	maxRecipients int
	logger        *slog.Logger
}

type DigestDeps struct {
	Store         *Store
	Subscriptions store.SubscriptionStore
	Resolver      recipients.Resolver
	Renderer      render.Renderer
	Mailer        mail.Sender
	Producer      queue.Producer
	MaxRecipients int
	Logger        *slog.Logger
}

func NewDigestJob(deps DigestDeps) *DigestJob {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &DigestJob{
		store:         deps.Store,
		subscriptions: deps.Subscriptions,
		resolver:      deps.Resolver,
		renderer:      deps.Renderer,
		mailer:        deps.Mailer,
		producer:      deps.Producer,
		maxRecipients: deps.MaxRecipients,
		logger:        deps.Logger,
	}
}

// Run handles every key holding rows created at or before cutoff. With a
// producer configured, each key is turned into an aggregation event instead.
func (j *DigestJob) Run(ctx context.Context, cutoff time.Time) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.aggregation.digest"})

	keys, err := j.store.Keys(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing aggregation keys: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if j.producer != nil {
			err = j.enqueue(ctx, key, cutoff)
		} else {
			err = j.SendDigest(ctx, key, cutoff)
		}
		if err != nil {
			digestsTotal.WithLabelValues("error").Inc()
			j.logger.ErrorContext(ctx, "digest failed", "error", err, "org_id", key.OrgID,
				"bundle", key.BundleName, "application", key.ApplicationName)
			errs = append(errs, err)
		}
	}

	j.logger.InfoContext(ctx, "digest run finished", "keys", len(keys), "failed", len(errs))
	return errors.Join(errs...)
}

func (j *DigestJob) enqueue(ctx context.Context, key model.EmailAggregationKey, cutoff time.Time) error {
	data, err := AggregationAction(key, cutoff)
	if err != nil {
		return err
	}
	return j.producer.Enqueue(ctx, queue.Envelope{
		EventID:   uuid.NewString(),
		Source:    "notifications-aggregator",
		Type:      "com.redhat.console.notifications.aggregation",
		Data:      data,
		MessageID: uuid.NewString(),
	})
}

// AggregationAction builds the action of an aggregation event for key.
func AggregationAction(key model.EmailAggregationKey, cutoff time.Time) ([]byte, error) {
	dc, err := json.Marshal(DigestContext{
		BundleName:      key.BundleName,
		ApplicationName: key.ApplicationName,
		EndTime:         cutoff.UTC(),
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Action{
		Bundle:      model.AggregationBundle,
		Application: model.AggregationApplication,
		EventType:   model.AggregationEventType,
		OrgID:       key.OrgID,
		Timestamp:   time.Now().UTC(),
		Context:     dc,
	})
}

// SendDigestForEvent sends the digest an aggregation event asks for.
func (j *DigestJob) SendDigestForEvent(ctx context.Context, event model.Event) error {
	var dc DigestContext
	if err := json.Unmarshal(event.Context, &dc); err != nil {
		return fmt.Errorf("decoding aggregation context: %w", err)
	}
	if dc.BundleName == "" || dc.ApplicationName == "" {
		return fmt.Errorf("aggregation event %s lacks bundle or application", event.ID)
	}
	if dc.EndTime.IsZero() {
		dc.EndTime = event.Timestamp
	}
	key := model.EmailAggregationKey{OrgID: event.OrgID, BundleName: dc.BundleName, ApplicationName: dc.ApplicationName}
	return j.SendDigest(ctx, key, dc.EndTime)
}

// SendDigest renders and sends the digest of key, then purges the rows it covered.
func (j *DigestJob) SendDigest(ctx context.Context, key model.EmailAggregationKey, cutoff time.Time) error {
	rows, err := j.store.Rows(ctx, key, cutoff)
	if err != nil {
		return fmt.Errorf("loading aggregations: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	payloads := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		payloads = append(payloads, r.Payload)
	}
	body, err := json.Marshal(payloads)
	if err != nil {
		return fmt.Errorf("encoding digest payload: %w", err)
	}

	subscribers, err := j.subscriptions.ListApplicationSubscribers(ctx, key.OrgID, key.BundleName, key.ApplicationName, model.SubscriptionDaily)
	if err != nil {
		return fmt.Errorf("loading digest subscribers: %w", err)
	}

	var users []model.User
	if len(subscribers) > 0 {
		users, err = j.resolver.Resolve(ctx, recipients.Request{
			OrgID:       key.OrgID,
			Settings:    []model.RecipientSettings{model.NewRecipientSettings(false, false, nil, nil)},
			Preferences: recipients.Preferences{Mode: recipients.OptIn, Usernames: subscribers},
		})
		if err != nil {
			return err
		}
	}

	if len(users) > 0 {
		rendered, err := j.renderer.Render(ctx, render.Request{
			OrgID:           key.OrgID,
			BundleName:      key.BundleName,
			ApplicationName: key.ApplicationName,
			EventType:       model.AggregationEventType,
			Channel:         render.ChannelEmail,
			Digest:          true,
			Payload:         body,
		})
		if err != nil {
			return fmt.Errorf("rendering digest: %w", err)
		}

		addresses := make([]string, 0, len(users))
		for _, u := range users {
			addresses = append(addresses, u.Email)
		}
		for _, batch := range mail.Batches(addresses, j.maxRecipients) {
			if err := j.mailer.Send(ctx, mail.Message{Bcc: batch, Subject: rendered.Subject, HTML: rendered.Body}); err != nil {
				return err
			}
		}
	}

	purged, err := j.store.Purge(ctx, key, cutoff)
	if err != nil {
		return fmt.Errorf("purging aggregations: %w", err)
	}

	digestsTotal.WithLabelValues("sent").Inc()
	j.logger.InfoContext(ctx, "digest sent",
		"org_id", key.OrgID,
		"bundle", key.BundleName,
		"application", key.ApplicationName,
		"rows", len(rows),
		"purged", purged,
		"recipients", len(users))
	return nil
}
