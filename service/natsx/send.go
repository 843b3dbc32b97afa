package natsx

import (
	"context"

	"RoomChat/tools/errs"

	"github.com/nats-io/nats.go"
)

func toHeader(h map[string]string) nats.Header {
	if len(h) == 0 {
		return nil
	}
	hd := nats.Header{}
	for k, v := range h {
		hd.Add(k, v)
	}
	return hd
}

// Publish sends data on subject. Core NATS is fire and forget; the context is
// only checked before sending.
func (c *NatsxClient) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	if h := toHeader(hdr); h != nil {
		msg.Header = h
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", subject)
	}
	return nil
}
