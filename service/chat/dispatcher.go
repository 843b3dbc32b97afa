package chat

import (
	"context"
)

// Handler runs one inbound command for a session.
type Handler func(ctx context.Context, s *Session, f *InboundFrame) error

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(command string, h Handler) { d.handlers[command] = h }

// GetHandler returns nil for unknown commands.
func (d *Dispatcher) GetHandler(command string) Handler {
	return d.handlers[command]
}
