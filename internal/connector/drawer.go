package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"notifications.app/engine/common/id"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
	"notifications.app/engine/internal/store"
)

const drawerEventType = "com.redhat.console.notifications.drawer"

// DrawerNotice is published once per event so the console can refresh open drawers.
type DrawerNotice struct {
	EventID   string   `json:"event_id"`
	OrgID     string   `json:"org_id"`
	Bundle    string   `json:"bundle"`
	Title     string   `json:"title"`
	Usernames []string `json:"usernames"`
}

// DrawerConnector stores in-app notifications for resolved users.
type DrawerConnector struct {
	enabled       bool
	subscriptions store.SubscriptionStore
	entries       store.DrawerStore
	renderer      render.Renderer
	publisher     queue.Publisher
	logger        *slog.Logger
}

type DrawerDeps struct {
	Enabled       bool
	Subscriptions store.SubscriptionStore
	Entries       store.DrawerStore
	Renderer      render.Renderer
	Publisher     queue.Publisher // optional
	Logger        *slog.Logger
}

func NewDrawerConnector(deps DrawerDeps) *DrawerConnector {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &DrawerConnector{
		enabled:       deps.Enabled,
		subscriptions: deps.Subscriptions,
		entries:       deps.Entries,
		renderer:      deps.Renderer,
		publisher:     deps.Publisher,
		logger:        deps.Logger,
	}
}

func (c *DrawerConnector) Name() string { return "drawer" }

func (c *DrawerConnector) RecipientRequest(ctx context.Context, event model.Event, endpoint model.Endpoint) (recipients.Request, bool, error) {
	if !c.enabled {
		return recipients.Request{}, false, nil
	}
	settings, ok := endpoint.RecipientSettings()
	if !ok {
		return recipients.Request{}, false, fmt.Errorf("endpoint %s has no subscription properties", endpoint.ID)
	}

	unsubscribed, err := c.subscriptions.ListUsernames(ctx, event.OrgID, event.EventTypeID(), model.SubscriptionDrawer, false)
	if err != nil {
		return recipients.Request{}, false, fmt.Errorf("loading drawer subscriptions: %w", err)
	}

	return recipients.Request{
		OrgID:       event.OrgID,
		Settings:    append([]model.RecipientSettings{settings}, event.Recipients...),
		Preferences: recipients.Preferences{Mode: recipients.OptOut, Usernames: unsubscribed},
	}, true, nil
}

func (c *DrawerConnector) Send(ctx context.Context, req Request) (Result, error) {
	if !c.enabled {
		return Result{Status: model.StatusSuccess, Details: map[string]any{"drawer_enabled": false}}, nil
	}
	if len(req.Users) == 0 {
		return Result{Status: model.StatusSuccess, Details: map[string]any{"recipients": 0}}, nil
	}

	rendered, err := c.renderer.Render(ctx, render.ForEvent(req.Event, render.ChannelDrawer))
	if err != nil {
		return Result{}, fmt.Errorf("rendering drawer entry: %w", err)
	}

	usernames := make([]string, 0, len(req.Users))
	for _, u := range req.Users {
		created, err := c.entries.Create(ctx, &model.DrawerEntry{
			ID:       id.New(),
			OrgID:    req.Event.OrgID,
			Username: u.Username,
			EventID:  req.Event.ID,
			Rendered: rendered.Body,
		})
		if err != nil {
			return Result{}, fmt.Errorf("storing drawer entry: %w", err)
		}
		if created {
			usernames = append(usernames, u.Username)
		}
	}

	if c.publisher != nil && len(usernames) > 0 {
		body, err := json.Marshal(DrawerNotice{
			EventID:   req.Event.ID.String(),
			OrgID:     req.Event.OrgID,
			Bundle:    req.Event.EventType.BundleName,
			Title:     rendered.Subject,
			Usernames: usernames,
		})
		if err != nil {
			return Result{}, fmt.Errorf("encoding drawer notice: %w", err)
		}
		if err := c.publisher.Publish(ctx, queue.ConnectorMessage{
			ID:        req.HistoryID.String(),
			Type:      drawerEventType,
			Source:    cloudEventSrc,
			Connector: string(model.EndpointTypeDrawer),
			OrgID:     req.Event.OrgID,
			Body:      body,
		}); err != nil {
			// Entries are stored; the notice only refreshes open sessions.
			c.logger.WarnContext(ctx, "failed to publish drawer notice", "error", err)
		}
	}

	return Result{Status: model.StatusSuccess, Details: map[string]any{"recipients": len(usernames)}}, nil
}
