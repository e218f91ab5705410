// Package dispatch delivers one event to every endpoint interested in it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/store"
)

// EndpointFailure is one endpoint whose delivery did not succeed.
type EndpointFailure struct {
	EndpointID uuid.UUID
	HistoryID  uuid.UUID
	Status     model.NotificationStatus
	Err        error
}

// DispatchError lists every endpoint that failed while dispatching one event.
type DispatchError struct {
	EventID  uuid.UUID
	Failures []EndpointFailure
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.EndpointID, f.Err))
	}
	return fmt.Sprintf("dispatching event %s: %d endpoint(s) failed: %s", e.EventID, len(e.Failures), strings.Join(parts, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type Dispatcher struct {
	registry *connector.Registry
	resolver recipients.Resolver
	history  store.HistoryStore
	workers  int
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(registry *connector.Registry, resolver recipients.Resolver, history store.HistoryStore, workers int, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		resolver: resolver,
		history:  history,
		workers:  workers,
		logger:   log,
		now:      time.Now,
	}
}

// Dispatch attempts every enabled endpoint, writes one history row per
// attempt and returns a *DispatchError when any of them failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.Event, endpoints []model.Endpoint) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   logger.Ptr(event.ID.String()),
		OrgID:     logger.Ptr(event.OrgID),
		EventType: logger.Ptr(event.EventType.FQN()),
		Component: "notifications.dispatch.dispatcher",
	})

	failures := make([]*EndpointFailure, len(endpoints))

	// Per-endpoint errors are collected, never returned to the group, so one
	// failing endpoint cannot cancel the others.
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i, endpoint := range endpoints {
		if !endpoint.Enabled {
			d.logger.DebugContext(ctx, "skipping disabled endpoint", "endpoint_id", endpoint.ID)
			continue
		}
		g.Go(func() error {
			failures[i] = d.deliver(ctx, event, endpoint)
			return nil
		})
	}
	_ = g.Wait()

	dispatchErr := &DispatchError{EventID: event.ID}
	for _, f := range failures {
		if f != nil {
			dispatchErr.Failures = append(dispatchErr.Failures, *f)
		}
	}
	if len(dispatchErr.Failures) > 0 {
		return dispatchErr
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event model.Event, endpoint model.Endpoint) *EndpointFailure {
	historyID := uuid.New()

	span := logger.StartSpan(ctx, "dispatch.deliver")
	defer span.End()
	span.SetAttributes(
		"notifications.endpoint_id", endpoint.ID.String(),
		"notifications.endpoint_type", string(endpoint.Type),
		"notifications.history_id", historyID.String(),
	)

	ctx = logger.WithLogFields(span.Context(), logger.LogFields{
		EndpointID: logger.Ptr(endpoint.ID.String()),
		HistoryID:  logger.Ptr(historyID.String()),
	})

	start := d.now()
	result, sendErr := d.send(ctx, event, endpoint, historyID)
	elapsed := d.now().Sub(start)

	if sendErr != nil && !result.Status.Failed() {
		result.Status = model.StatusFailedInternal
	}
	if sendErr != nil {
		if result.Details == nil {
			result.Details = map[string]any{}
		}
		result.Details["failure"] = sendErr.Error()
	}

	h := model.NewHistory(historyID, event, endpoint, result.Status, elapsed)
	h.Details = result.Details
	if err := d.history.Create(ctx, &h); err != nil {
		d.logger.ErrorContext(ctx, "failed to record notification history", "error", err)
		if sendErr == nil {
			sendErr = fmt.Errorf("recording history: %w", err)
		}
	}

	deliveriesTotal.WithLabelValues(string(endpoint.Type), string(h.Status)).Inc()
	deliveryDuration.WithLabelValues(string(endpoint.Type)).Observe(elapsed.Seconds())

	if sendErr != nil {
		span.RecordError(sendErr)
		d.logger.WarnContext(ctx, "endpoint delivery failed",
			"error", sendErr,
			"status", h.Status,
			"endpoint_type", endpoint.Type)
		return &EndpointFailure{EndpointID: endpoint.ID, HistoryID: historyID, Status: h.Status, Err: sendErr}
	}

	d.logger.DebugContext(ctx, "endpoint delivered", "status", h.Status, "invocation_ms", h.InvocationTimeMs)
	return nil
}

// send runs the connector for one endpoint. A panic inside it becomes an
// internal failure of that endpoint only.
func (d *Dispatcher) send(ctx context.Context, event model.Event, endpoint model.Endpoint, historyID uuid.UUID) (result connector.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			connectorPanicsTotal.WithLabelValues(string(endpoint.Type)).Inc()
			d.logger.ErrorContext(ctx, "panic recovered in connector", "panic", r, "stack", string(debug.Stack()))
			result, err = connector.Result{Status: model.StatusFailedInternal}, fmt.Errorf("connector panic: %v", r)
		}
	}()

	c, err := d.registry.Lookup(endpoint)
	if err != nil {
		return connector.Result{}, err
	}

	req := connector.Request{Event: event, Endpoint: endpoint, HistoryID: historyID}

	if rc, ok := c.(connector.RecipientConnector); ok {
		rr, resolve, err := rc.RecipientRequest(ctx, event, endpoint)
		if err != nil {
			return connector.Result{}, err
		}
		if resolve {
			users, err := d.resolver.Resolve(ctx, rr)
			if err != nil {
				return connector.Result{}, fmt.Errorf("resolving recipients: %w", err)
			}
			req.Users = users
		}
	}

	result, err = c.Send(ctx, req)
	if err != nil {
		return result, err
	}
	if result.Status == "" {
		return result, errors.New("connector returned no status")
	}
	return result, nil
}
