package messaging

import (
	"context"
)

const EntityMessage = "message"

// Message is a unit of deferred work carried on the message bus. Execute may
// run more than once for the same message and must converge to the same
// state every time. The returned messages are sent only after Execute
// returned ok, so they never describe a change that was not committed.
type Message interface {
	Type() string
	Execute(ctx context.Context) (ok bool, next []Message, err error)
}

// Batchable is implemented by messages that carry a bounded list of work.
type Batchable interface {
	Message
	CanFitMore() bool
}
