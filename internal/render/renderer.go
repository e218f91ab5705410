// Package render calls the template service that turns an event into channel content.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/retry"
)

// Channels a template can be selected for.
const (
	ChannelEmail   = "email"
	ChannelDrawer  = "drawer"
	ChannelWebhook = "webhook"
)

type Request struct {
	OrgID           string          `json:"org_id"`
	BundleName      string          `json:"bundle"`
	ApplicationName string          `json:"application"`
	EventType       string          `json:"event_type"`
	Channel         string          `json:"channel"`
	Digest          bool            `json:"digest"`
	Payload         json.RawMessage `json:"payload"`
}

// ForEvent selects the template of event's type for channel.
func ForEvent(event model.Event, channel string) Request {
	return Request{
		OrgID:           event.OrgID,
		BundleName:      event.EventType.BundleName,
		ApplicationName: event.EventType.ApplicationName,
		EventType:       event.EventType.Name,
		Channel:         channel,
		Payload:         event.Payload,
	}
}

type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Renderer interface {
	Render(ctx context.Context, req Request) (Rendered, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	retry   *retry.Client
}

func NewClient(baseURL string, httpClient *http.Client, policy retry.Policy, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		retry:   retry.NewClient("renderer", policy, retry.WithLogger(log)),
	}
}

func (c *Client) Render(ctx context.Context, req Request) (Rendered, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Rendered{}, fmt.Errorf("encoding render request: %w", err)
	}

	return retry.Call(ctx, c.retry, "render_"+req.Channel, func(ctx context.Context) (Rendered, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/templates/render", bytes.NewReader(body))
		if err != nil {
			return Rendered{}, fmt.Errorf("building render request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return Rendered{}, err
		}
		if err := retry.CheckResponse(resp); err != nil {
			return Rendered{}, err
		}
		defer resp.Body.Close()

		var out Rendered
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Rendered{}, fmt.Errorf("decoding rendered template: %w", err)
		}
		return out, nil
	})
}
