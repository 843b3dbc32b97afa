package chat

import (
	"context"
	"encoding/json"
	"sync"

	"RoomChat/logger"
	"RoomChat/service/natsx"
	"RoomChat/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsBus spans nodes. Each node holds one NATS subscription per group with
// local subscribers and one per attached handle, and fans out locally
// through its Registry.
//
// mu only guards the subscription maps. Subscribing to NATS waits for a
// server round trip and always runs with mu released.
type NatsBus struct {
	client *natsx.NatsxClient
	prefix string
	reg    *Registry

	mu         sync.Mutex
	closed     bool
	groupSubs  map[string]*groupSub
	handleSubs map[string]*nats.Subscription
}

// groupSub is the node's subscription to one group. ready is closed once the
// first local subscriber has finished subscribing, with err set on failure.
type groupSub struct {
	ready chan struct{}
	sub   *nats.Subscription
	err   error
}

var _ Bus = (*NatsBus)(nil)

func NewNatsBus(client *natsx.NatsxClient, subjectPrefix string) *NatsBus {
	if subjectPrefix == "" {
		subjectPrefix = "chat"
	}
	return &NatsBus{
		client:     client,
		prefix:     subjectPrefix,
		reg:        NewRegistry(),
		groupSubs:  make(map[string]*groupSub),
		handleSubs: make(map[string]*nats.Subscription),
	}
}

func (b *NatsBus) Registry() *Registry { return b.reg }

func decodeEvent(msg natsx.NatsxMessage) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ev, errs.ErrArgs.WrapMsg("bad bus event", "subject", msg.Subject, "err", err)
	}
	return ev, nil
}

func (b *NatsBus) Attach(_ context.Context, handle string, r Receiver) error {
	if handle == "" || r == nil {
		return errs.ErrArgs.WrapMsg("empty handle or receiver")
	}
	b.reg.attach(handle, r)
	sub, err := b.client.Subscribe(handleSubject(b.prefix, handle), func(_ context.Context, msg natsx.NatsxMessage) error {
		ev, err := decodeEvent(msg)
		if err != nil {
			return err
		}
		b.reg.deliverHandle(handle, ev)
		return nil
	})
	if err != nil {
		b.reg.detach(handle)
		return err
	}

	b.mu.Lock()
	// detached or closed while the subscription was in flight
	stale := b.closed || !b.reg.attached(handle)
	if !stale {
		b.handleSubs[handle] = sub
	}
	b.mu.Unlock()
	if stale {
		_ = b.client.Unsubscribe(sub)
	}
	return nil
}

func (b *NatsBus) Detach(_ context.Context, handle string) error {
	b.mu.Lock()
	var subs []*nats.Subscription
	if sub, ok := b.handleSubs[handle]; ok {
		delete(b.handleSubs, handle)
		subs = append(subs, sub)
	}
	for _, group := range b.reg.detach(handle) {
		if sub := b.dropGroupLocked(group); sub != nil {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()
	return b.unsubscribeAll(subs)
}

// Subscribe returns once the node's group subscription is live on the
// server. Only the first local subscriber of a group talks to NATS; later
// ones wait for its result.
func (b *NatsBus) Subscribe(ctx context.Context, group, handle string) error {
	b.mu.Lock()
	if !b.reg.attached(handle) {
		b.mu.Unlock()
		return errs.ErrArgs.WrapMsg("handle not attached", "handle", handle)
	}
	b.reg.join(group, handle)
	gs, ok := b.groupSubs[group]
	if !ok {
		gs = &groupSub{ready: make(chan struct{})}
		b.groupSubs[group] = gs
	}
	b.mu.Unlock()

	if ok {
		select {
		case <-gs.ready:
		case <-ctx.Done():
			_ = b.Unsubscribe(context.Background(), group, handle)
			return errs.Wrap(ctx.Err())
		}
		if gs.err != nil {
			_ = b.Unsubscribe(context.Background(), group, handle)
			return gs.err
		}
		return nil
	}

	sub, err := b.client.Subscribe(groupSubject(b.prefix, group), func(_ context.Context, msg natsx.NatsxMessage) error {
		ev, err := decodeEvent(msg)
		if err != nil {
			return err
		}
		b.reg.deliverGroup(group, ev)
		return nil
	})

	b.mu.Lock()
	current := !b.closed && b.groupSubs[group] == gs
	switch {
	case err != nil:
		gs.err = err
		if current {
			delete(b.groupSubs, group)
		}
		b.reg.leave(group, handle)
	case current:
		gs.sub = sub
	}
	close(gs.ready)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if !current {
		// every local subscriber left while the subscription was in flight
		_ = b.client.Unsubscribe(sub)
		return nil
	}
	logger.Debug("group subscribed", zap.String("group", group))
	return nil
}

func (b *NatsBus) Unsubscribe(_ context.Context, group, handle string) error {
	b.mu.Lock()
	var sub *nats.Subscription
	if b.reg.leave(group, handle) {
		sub = b.dropGroupLocked(group)
	}
	b.mu.Unlock()
	return b.client.Unsubscribe(sub)
}

// dropGroupLocked forgets group and hands back its live subscription, if
// any, for the caller to close once mu is released. A subscription still in
// flight is closed by its subscriber.
func (b *NatsBus) dropGroupLocked(group string) *nats.Subscription {
	gs, ok := b.groupSubs[group]
	if !ok {
		return nil
	}
	delete(b.groupSubs, group)
	logger.Debug("group released", zap.String("group", group))
	return gs.sub
}

func (b *NatsBus) unsubscribeAll(subs []*nats.Subscription) error {
	var firstErr error
	for _, sub := range subs {
		if err := b.client.Unsubscribe(sub); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *NatsBus) publish(ctx context.Context, subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err)
	}
	return b.client.Publish(ctx, subject, data, nil)
}

func (b *NatsBus) PublishToGroup(ctx context.Context, group string, ev Event) error {
	return b.publish(ctx, groupSubject(b.prefix, group), ev)
}

// PublishToHandle publishes even when nobody listens; core NATS drops it.
func (b *NatsBus) PublishToHandle(ctx context.Context, handle string, ev Event) error {
	return b.publish(ctx, handleSubject(b.prefix, handle), ev)
}

// Close releases every subscription. The NATS connection belongs to the caller.
func (b *NatsBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var subs []*nats.Subscription
	for g, gs := range b.groupSubs {
		if gs.sub != nil {
			subs = append(subs, gs.sub)
		}
		delete(b.groupSubs, g)
	}
	for h, sub := range b.handleSubs {
		subs = append(subs, sub)
		delete(b.handleSubs, h)
	}
	b.mu.Unlock()
	_ = b.unsubscribeAll(subs)
	return nil
}

// Groups reports the groups this node holds or is opening a NATS
// subscription for.
func (b *NatsBus) Groups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groupSubs)
}
