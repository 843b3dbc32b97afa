package natsx

import (
	"context"
	"time"

	"RoomChat/logger"
	"RoomChat/tools/safe"

	"go.uber.org/zap"
)

// NatsxMessage is a received message detached from the nats buffer.
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler processes one message.
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware wraps a handler (logging, recovery, ...).
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain applies mws so that the first one runs outermost.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxRecover turns a handler panic into an error.
func NatsxRecover() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			return safe.Call(func() error { return next(ctx, msg) })
		}
	}
}

// NatsxLogging logs failed handlers, and every message at debug level.
func NatsxLogging() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				logger.Warn("nats handler failed", zap.String("subject", msg.Subject), zap.Error(err))
				return err
			}
			logger.Debug("nats handled", zap.String("subject", msg.Subject),
				zap.Int("bytes", len(msg.Data)), zap.Duration("took", time.Since(start)))
			return nil
		}
	}
}
