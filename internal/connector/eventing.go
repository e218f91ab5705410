package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"notifications.app/engine/common/id"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/store"
)

const (
	// PayloadHeader names the event whose stored payload replaces an oversized body.
	PayloadHeader   = "x-rh-notifications-connector-payload"
	cloudEventType  = "com.redhat.console.notification.toCamel."
	cloudEventSrc   = "notifications"
	metadataField   = "notif-metadata"
	defaultMaxBytes = 256 * 1024
)

// Metadata carries delivery instructions for the connector service. Credentials
// travel as a secret reference only.
type Metadata struct {
	URL            string                `json:"url,omitempty"`
	Method         string                `json:"method,omitempty"`
	TrustAll       bool                  `json:"trustAll"`
	Type           string                `json:"type"`
	Severity       string                `json:"severity,omitempty"`
	Extras         map[string]string     `json:"extras,omitempty"`
	OriginalID     string                `json:"_originalId"`
	Authentication *model.Authentication `json:"authentication,omitempty"`
}

// EventingConnector hands the event to an asynchronous connector service and
// leaves the history row pending until the service reports back.
type EventingConnector struct {
	publisher      queue.Publisher
	payloads       store.PayloadStore
	maxPayloadSize int
	logger         *slog.Logger
}

func NewEventingConnector(publisher queue.Publisher, payloads store.PayloadStore, maxPayloadSize int, logger *slog.Logger) *EventingConnector {
	if maxPayloadSize <= 0 {
		maxPayloadSize = defaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventingConnector{publisher: publisher, payloads: payloads, maxPayloadSize: maxPayloadSize, logger: logger}
}

func (e *EventingConnector) Name() string { return "eventing" }

func (e *EventingConnector) Send(ctx context.Context, req Request) (Result, error) {
	metadata, err := buildMetadata(req.Event, req.Endpoint)
	if err != nil {
		return Result{}, err
	}

	body, err := connectorBody(req.Event, metadata)
	if err != nil {
		return Result{}, err
	}

	connector := req.Endpoint.Connector()
	msg := queue.ConnectorMessage{
		ID:        req.HistoryID.String(),
		Type:      cloudEventType + connector,
		Source:    cloudEventSrc,
		Connector: connector,
		OrgID:     req.Event.OrgID,
		Body:      body,
	}

	stored := false
	if len(body) > e.maxPayloadSize {
		if err := e.payloads.Create(ctx, &model.PayloadDetails{
			ID:       id.New(),
			EventID:  req.Event.ID,
			OrgID:    req.Event.OrgID,
			Contents: body,
		}); err != nil {
			return Result{}, fmt.Errorf("storing oversized payload: %w", err)
		}
		msg.Body = []byte("{}")
		msg.Headers = map[string]string{PayloadHeader: req.Event.ID.String()}
		stored = true
	}

	if err := e.publisher.Publish(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("publishing to %s connector: %w", connector, err)
	}
	connectorMessagesTotal.WithLabelValues(connector, fmt.Sprint(stored)).Inc()

	e.logger.DebugContext(ctx, "event sent to connector", "connector", connector, "stored_payload", stored)
	return Result{Status: model.StatusProcessing, Details: map[string]any{"connector": connector}}, nil
}

func buildMetadata(event model.Event, endpoint model.Endpoint) (Metadata, error) {
	m := Metadata{Type: endpoint.SubType, OriginalID: event.ID.String()}

	switch {
	case endpoint.Properties.Camel != nil:
		p := endpoint.Properties.Camel
		m.URL = p.URL
		m.Method = "POST"
		m.TrustAll = p.DisableSSLVerification
		m.Extras = p.Extras
		m.Authentication = p.Authentication
	case endpoint.Properties.PagerDuty != nil:
		p := endpoint.Properties.PagerDuty
		m.Type = string(model.EndpointTypePagerDuty)
		m.Severity = p.Severity
		m.Authentication = p.Authentication
	default:
		return Metadata{}, fmt.Errorf("endpoint %s has no connector properties", endpoint.ID)
	}
	return m, nil
}

// connectorBody is the event payload with org_id and the metadata object added.
func connectorBody(event model.Event, metadata Metadata) ([]byte, error) {
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decoding event payload: %w", err)
		}
	}
	payload["org_id"] = event.OrgID
	payload[metadataField] = metadata

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding connector payload: %w", err)
	}
	return body, nil
}
