package messaging

import (
	"context"
)

// Delivery is a received message body waiting for its outcome.
type Delivery interface {
	Body() []byte
	// Ack removes the message from the queue.
	Ack(ctx context.Context) error
	// Nack leaves the message for redelivery.
	Nack(ctx context.Context) error
}

// Backend is a durable queue with at-least-once delivery.
type Backend interface {
	Name() string
	Send(ctx context.Context, bodies [][]byte) error
	// Receive blocks until at least one message is available, the context
	// is done, or the backend wait time elapses. It returns at most max
	// deliveries.
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Close() error
}
