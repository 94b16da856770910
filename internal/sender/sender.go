package sender

import (
	"context"
	"fmt"
)

// Message is the payload delivered to every recipient of a broadcast.
type Message struct {
	Text     string
	MediaURL string
}

// Result reports the provider-assigned id of a delivered message.
type Result struct {
	MessageID string
}

// Sender delivers one message to one recipient through exactly one
// provider call. Implementations never retry; retry policy, if any,
// belongs to the caller. Business-level rejections (blocked number,
// invalid recipient) are reported as *SendError, not panics.
type Sender interface {
	Send(ctx context.Context, recipient string, msg Message) (*Result, error)
}

// SendError is the failure outcome of a single provider call.
type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("send failed: %s", e.Reason)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func newSendError(reason string, err error) *SendError {
	return &SendError{Reason: reason, Err: err}
}
