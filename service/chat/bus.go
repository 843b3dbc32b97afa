package chat

import "context"

// Event is what travels on the bus. Payload is the encoded outbound frame,
// written to the socket as is; MessageID and AuthorID let receivers act on
// new messages without decoding it.
type Event struct {
	Command   string `json:"command"`
	Payload   []byte `json:"payload"`
	MessageID int64  `json:"message_id,omitempty"`
	AuthorID  string `json:"author_id,omitempty"`
}

// Receiver is the local delivery target of a handle.
type Receiver interface {
	Receive(ev Event)
}

// Bus delivers events to every handle subscribed to a group, or to one handle.
// A handle must be attached before it can subscribe or receive.
type Bus interface {
	Attach(ctx context.Context, handle string, r Receiver) error
	Detach(ctx context.Context, handle string) error
	Subscribe(ctx context.Context, group, handle string) error
	Unsubscribe(ctx context.Context, group, handle string) error
	PublishToGroup(ctx context.Context, group string, ev Event) error
	// PublishToHandle silently drops events for unknown handles.
	PublishToHandle(ctx context.Context, handle string, ev Event) error
	Close() error
}
