package worker

import (
	"context"

	"notifications.app/engine/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// EventProcessor mirrors service.EventProcessor.
type EventProcessor interface {
	Process(ctx context.Context, env queue.Envelope) error
}

// MessageHandler settles one message: it is acked, requeued or dead-lettered
// before the handler returns.
type MessageHandler func(ctx context.Context, msg queue.Message) error
