package messaging

import (
	"context"
)

// Broker defines the interface for the dispatch-queue transport. The
// API publishes dispatch jobs onto a channel and the worker subscribes
// to drain them.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher is the narrow producer-side view used by services that
// only ever enqueue.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}
