package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/core/config"
	"notifications.app/engine/internal/dedup"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/store"
)

// Dispatcher mirrors dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.Event, endpoints []model.Endpoint) error
}

// DigestSender mirrors aggregation.DigestJob.
type DigestSender interface {
	SendDigestForEvent(ctx context.Context, event model.Event) error
}

// EventProcessor turns one envelope from the inbound log into deliveries.
type EventProcessor interface {
	Process(ctx context.Context, env queue.Envelope) error
}

type ProcessResult string

const (
	ResultDispatched ProcessResult = "dispatched"
	ResultDigest     ProcessResult = "digest"
	ResultDuplicate  ProcessResult = "duplicate"
	ResultUnknown    ProcessResult = "unknown_event_type"
	ResultNoEndpoint ProcessResult = "no_endpoint"
)

type eventProcessor struct {
	eventTypes store.EventTypeStore
	endpoints  store.EndpointStore
	txRunner   TxRunner
	dispatcher Dispatcher
	digests    DigestSender
	features   config.Features
	logger     *slog.Logger
}

type EventProcessorDeps struct {
	EventTypes store.EventTypeStore
	Endpoints  store.EndpointStore
	TxRunner   TxRunner
	Dispatcher Dispatcher
	Digests    DigestSender
	Features   config.Features
	Logger     *slog.Logger
}

func NewEventProcessor(deps EventProcessorDeps) EventProcessor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &eventProcessor{
		eventTypes: deps.EventTypes,
		endpoints:  deps.Endpoints,
		txRunner:   deps.TxRunner,
		dispatcher: deps.Dispatcher,
		digests:    deps.Digests,
		features:   deps.Features,
		logger:     deps.Logger,
	}
}

func (p *eventProcessor) Process(ctx context.Context, env queue.Envelope) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.service.event_processor"})

	result, err := p.process(ctx, env)
	if err != nil {
		eventsProcessedTotal.WithLabelValues("error").Inc()
		return err
	}
	eventsProcessedTotal.WithLabelValues(string(result)).Inc()
	return nil
}

func (p *eventProcessor) process(ctx context.Context, env queue.Envelope) (ProcessResult, error) {
	var action model.Action
	if err := json.Unmarshal(env.Data, &action); err != nil {
		return "", fmt.Errorf("%w: decoding action: %v", queue.ErrInvalidMessage, err)
	}
	if err := validateAction(action); err != nil {
		return "", err
	}
	if action.ID == nil && env.EventID != "" {
		if id, err := uuid.Parse(env.EventID); err == nil {
			action.ID = &id
		}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		OrgID:     logger.Ptr(action.OrgID),
		EventType: logger.Ptr(action.Bundle + "/" + action.Application + "/" + action.EventType),
	})

	eventType, err := p.eventTypes.GetByName(ctx, action.Bundle, action.Application, action.EventType)
	if errors.Is(err, store.ErrNotFound) {
		p.logger.WarnContext(ctx, "unknown event type, dropping event")
		return ResultUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading event type: %w", err)
	}

	event := model.NewEvent(*eventType, action, env.Data)
	event.TraceID = env.TraceID
	if id, ok := dedup.ParseMessageID(env.MessageID); ok {
		event.MessageID = id
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(event.ID.String())})

	var endpoints []model.Endpoint
	if !event.IsAggregation() {
		endpoints, err = p.endpoints.ListForEventType(ctx, event.OrgID, event.EventTypeID())
		if err != nil {
			return "", fmt.Errorf("loading endpoints: %w", err)
		}
		endpoints = p.filterEndpoints(endpoints)
	}

	// Both gates commit together so a message is never half admitted.
	admitted := false
	err = p.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		ok, err := dedup.NewMessageGate(sp.InboundMessages(), p.logger).Admit(ctx, env.MessageID)
		if err != nil || !ok {
			return err
		}
		admitted, err = dedup.NewDeduplicator(sp.Deduplication(), p.logger).IsNew(ctx, event)
		return err
	})
	if err != nil {
		return "", err
	}
	if !admitted {
		return ResultDuplicate, nil
	}

	if event.IsAggregation() {
		if err := p.digests.SendDigestForEvent(ctx, event); err != nil {
			return "", fmt.Errorf("sending digest: %w", err)
		}
		return ResultDigest, nil
	}

	if len(endpoints) == 0 {
		p.logger.DebugContext(ctx, "no endpoint for event")
		return ResultNoEndpoint, nil
	}

	if err := p.dispatcher.Dispatch(ctx, event, endpoints); err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "event dispatched", "endpoints", len(endpoints))
	return ResultDispatched, nil
}

func (p *eventProcessor) filterEndpoints(endpoints []model.Endpoint) []model.Endpoint {
	if !p.features.EmailsOnlyMode {
		return endpoints
	}
	kept := endpoints[:0:0]
	for _, e := range endpoints {
		if e.Type == model.EndpointTypeEmailSubscription {
			kept = append(kept, e)
		}
	}
	return kept
}

func validateAction(a model.Action) error {
	switch {
	case a.Bundle == "":
		return fmt.Errorf("%w: bundle is required", queue.ErrInvalidMessage)
	case a.Application == "":
		return fmt.Errorf("%w: application is required", queue.ErrInvalidMessage)
	case a.EventType == "":
		return fmt.Errorf("%w: event_type is required", queue.ErrInvalidMessage)
	case a.OrgID == "":
		return fmt.Errorf("%w: org_id is required", queue.ErrInvalidMessage)
	}
	return nil
}
