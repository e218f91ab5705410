package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/dispatch"
	"notifications.app/engine/internal/queue"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer  Consumer
	processor EventProcessor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor EventProcessor, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.worker.worker"})
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.HandleMessage(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message settlement failed", "error", err, "message_id", msg.ID)
		}
	}
	return nil
}

// HandleMessage processes msg and settles it. Exported so the reclaimer can reuse it.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.Envelope.TraceID, "engine.process_event",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{MessageID: logger.Ptr(msg.ID)})

	slog.DebugContext(ctx, "processing message",
		"event_id", msg.Envelope.EventID,
		"attempt", msg.Attempt())

	err := w.processSafe(ctx, msg)
	if err == nil {
		messagesTotal.WithLabelValues("processed").Inc()
		return w.consumer.Ack(ctx, msg)
	}
	sc.RecordError(err)

	var dispatchErr *dispatch.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		// The event was admitted and every endpoint has a history row; a retry would be dropped as a duplicate.
		messagesTotal.WithLabelValues("partial_failure").Inc()
		slog.WarnContext(ctx, "event dispatched with failures",
			"error", err,
			"failed_endpoints", len(dispatchErr.Failures))
		return w.consumer.Ack(ctx, msg)

	case errors.Is(err, queue.ErrInvalidMessage):
		messagesTotal.WithLabelValues("invalid").Inc()
		slog.ErrorContext(ctx, "invalid message, sending to DLQ", "error", err)
		return w.consumer.SendDLQ(ctx, msg, err.Error())

	case msg.Attempt() >= w.cfg.MaxAttempts:
		messagesTotal.WithLabelValues("dead_lettered").Inc()
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"error", err,
			"attempts", msg.Attempt())
		return w.consumer.SendDLQ(ctx, msg, err.Error())

	default:
		messagesTotal.WithLabelValues("requeued").Inc()
		slog.WarnContext(ctx, "requeuing failed message",
			"error", err,
			"attempt", msg.Attempt())
		return w.consumer.Requeue(ctx, msg, err.Error())
	}
}

func (w *Worker) processSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, msg.Envelope)
}
