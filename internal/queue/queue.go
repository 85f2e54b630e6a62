package queue

import (
	"context"
)

// Publisher publishes forward messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ForwardMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ForwardMessage) error

// Consumer consumes forward messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// ForwardQueueName is the work queue carrying records awaiting delivery.
	ForwardQueueName = "records.forward"

	// ForwardDLQName receives forward messages rejected as unprocessable.
	ForwardDLQName = "dlq.records.forward"
)
