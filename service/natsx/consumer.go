package natsx

import (
	"context"
	"errors"

	"RoomChat/tools/errs"

	"github.com/nats-io/nats.go"
)

// Subscribe opens a core subscription on subject. The subscription is
// flushed to the server before returning, so a publish issued after
// Subscribe returns is delivered to it.
func (c *NatsxClient) Subscribe(subject string, h NatsxHandler) (*nats.Subscription, error) {
	h = NatsxChain(h, c.mws...)
	cb := func(m *nats.Msg) {
		_ = h(context.Background(), NatsxMessage{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		})
	}
	sub, err := c.nc.Subscribe(subject, cb)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats subscribe", "subject", subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	if err := c.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, errs.WrapMsg(err, "nats subscribe flush", "subject", subject)
	}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub, nil
}

// Unsubscribe closes sub. Closing an already closed subscription is a no-op.
func (c *NatsxClient) Unsubscribe(sub *nats.Subscription) error {
	if sub == nil {
		return nil
	}
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) && !errors.Is(err, nats.ErrConnectionClosed) {
		return errs.WrapMsg(err, "nats unsubscribe", "subject", sub.Subject)
	}
	return nil
}

// Subscriptions reports how many subscriptions are open.
func (c *NatsxClient) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
