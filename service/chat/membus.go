package chat

import (
	"context"

	"RoomChat/logger"
	"RoomChat/tools/errs"

	"go.uber.org/zap"
)

// MemoryBus serves a single process.
type MemoryBus struct {
	reg *Registry
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{reg: NewRegistry()}
}

func (b *MemoryBus) Registry() *Registry { return b.reg }

func (b *MemoryBus) Attach(_ context.Context, handle string, r Receiver) error {
	if handle == "" || r == nil {
		return errs.ErrArgs.WrapMsg("empty handle or receiver")
	}
	b.reg.attach(handle, r)
	return nil
}

func (b *MemoryBus) Detach(_ context.Context, handle string) error {
	b.reg.detach(handle)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, group, handle string) error {
	if !b.reg.attached(handle) {
		return errs.ErrArgs.WrapMsg("handle not attached", "handle", handle)
	}
	b.reg.join(group, handle)
	return nil
}

func (b *MemoryBus) Unsubscribe(_ context.Context, group, handle string) error {
	b.reg.leave(group, handle)
	return nil
}

func (b *MemoryBus) PublishToGroup(ctx context.Context, group string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	n := b.reg.deliverGroup(group, ev)
	logger.Debug("group publish", zap.String("group", group), zap.String("command", ev.Command), zap.Int("receivers", n))
	return nil
}

func (b *MemoryBus) PublishToHandle(ctx context.Context, handle string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	if !b.reg.deliverHandle(handle, ev) {
		logger.Debug("handle gone, event dropped", zap.String("handle", handle), zap.String("command", ev.Command))
	}
	return nil
}

func (b *MemoryBus) Close() error { return nil }
