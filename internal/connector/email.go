package connector

import (
	"context"
	"fmt"
	"log/slog"

	"notifications.app/engine/internal/aggregation"
	"notifications.app/engine/internal/mail"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
	"notifications.app/engine/internal/store"
)

// EmailConnector sends instant emails to resolved users, or stores the event
// for the daily digest when the endpoint asks for one.
type EmailConnector struct {
	subscriptions store.SubscriptionStore
	aggregations  *aggregation.Store
	renderer      render.Renderer
	mailer        mail.Sender
	maxRecipients int
	logger        *slog.Logger
}

type EmailDeps struct {
	Subscriptions store.SubscriptionStore
	Aggregations  *aggregation.Store
	Renderer      render.Renderer
	Mailer        mail.Sender
	MaxRecipients int
	Logger        *slog.Logger
}

func NewEmailConnector(deps EmailDeps) *EmailConnector {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &EmailConnector{
		subscriptions: deps.Subscriptions,
		aggregations:  deps.Aggregations,
		renderer:      deps.Renderer,
		mailer:        deps.Mailer,
		maxRecipients: deps.MaxRecipients,
		logger:        deps.Logger,
	}
}

func (c *EmailConnector) Name() string { return "email" }

func (c *EmailConnector) RecipientRequest(ctx context.Context, event model.Event, endpoint model.Endpoint) (recipients.Request, bool, error) {
	settings, ok := endpoint.RecipientSettings()
	if !ok {
		return recipients.Request{}, false, fmt.Errorf("endpoint %s has no subscription properties", endpoint.ID)
	}
	if isDigest(endpoint) {
		return recipients.Request{}, false, nil
	}

	all := append([]model.RecipientSettings{settings}, event.Recipients...)

	// Subscribed-by-default event types store who opted out; the others store who opted in.
	optOut := event.EventType.SubscribedByDefault
	usernames, err := c.subscriptions.ListUsernames(ctx, event.OrgID, event.EventTypeID(), model.SubscriptionInstant, !optOut)
	if err != nil {
		return recipients.Request{}, false, fmt.Errorf("loading email subscriptions: %w", err)
	}

	if optOut {
		return recipients.Request{
			OrgID:       event.OrgID,
			Settings:    all,
			Preferences: recipients.Preferences{Mode: recipients.OptOut, Usernames: usernames},
		}, true, nil
	}

	if len(usernames) == 0 {
		// Nobody opted in, so only settings ignoring preferences can reach anyone.
		kept := all[:0:0]
		for _, s := range all {
			if s.IgnoreUserPreferences {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			return recipients.Request{}, false, nil
		}
		all = kept
	}

	return recipients.Request{
		OrgID:       event.OrgID,
		Settings:    all,
		Preferences: recipients.Preferences{Mode: recipients.OptIn, Usernames: usernames},
	}, true, nil
}

func (c *EmailConnector) Send(ctx context.Context, req Request) (Result, error) {
	if isDigest(req.Endpoint) {
		key := model.EmailAggregationKey{
			OrgID:           req.Event.OrgID,
			BundleName:      req.Event.EventType.BundleName,
			ApplicationName: req.Event.EventType.ApplicationName,
		}
		// Add already logged the cause; a lost digest row never fails delivery.
		stored := c.aggregations.Add(ctx, key, req.Event.Payload)
		if stored {
			emailsSentTotal.WithLabelValues("aggregated").Inc()
		} else {
			emailsSentTotal.WithLabelValues("aggregation_failed").Inc()
		}
		return Result{Status: model.StatusSuccess, Details: map[string]any{"aggregated": stored}}, nil
	}

	if len(req.Users) == 0 {
		return Result{Status: model.StatusSuccess, Details: map[string]any{"recipients": 0}}, nil
	}

	rendered, err := c.renderer.Render(ctx, render.ForEvent(req.Event, render.ChannelEmail))
	if err != nil {
		return Result{}, fmt.Errorf("rendering email: %w", err)
	}

	addresses := make([]string, 0, len(req.Users))
	for _, u := range req.Users {
		if u.Email != "" {
			addresses = append(addresses, u.Email)
		}
	}

	for _, batch := range mail.Batches(addresses, c.maxRecipients) {
		if err := c.mailer.Send(ctx, mail.Message{Bcc: batch, Subject: rendered.Subject, HTML: rendered.Body}); err != nil {
			return Result{}, fmt.Errorf("sending email: %w", err)
		}
		emailsSentTotal.WithLabelValues("instant").Inc()
	}

	c.logger.DebugContext(ctx, "email sent", "recipients", len(addresses))
	return Result{Status: model.StatusSuccess, Details: map[string]any{"recipients": len(addresses)}}, nil
}

func isDigest(endpoint model.Endpoint) bool {
	return endpoint.Properties.System != nil && endpoint.Properties.System.Digest
}
