package natsx

import (
	"errors"
	"strings"
	"sync"
	"time"

	"RoomChat/logger"
	"RoomChat/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxConfig client options.
type NatsxConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
	User          string
	Password      string
}

// NatsxClient wraps one core NATS connection and the subscriptions opened
// through it.
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	mws []NatsxMiddleware

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// NewNatsxClient connects to the configured servers. Reconnects are unbounded.
func NewNatsxClient(cfg NatsxConfig, mws ...NatsxMiddleware) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Warn("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	return &NatsxClient{
		cfg:  cfg,
		nc:   nc,
		mws:  mws,
		subs: make(map[*nats.Subscription]struct{}),
	}, nil
}

// Flush waits until the server has processed everything sent so far,
// subscriptions included.
func (c *NatsxClient) Flush() error {
	return errs.Wrap(c.nc.FlushTimeout(c.cfg.Timeout))
}

// Close drains open subscriptions and then the connection. Safe to call twice.
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	for sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, sub)
	}
	c.mu.Unlock()
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return errs.Wrap(err)
	}
	return nil
}
