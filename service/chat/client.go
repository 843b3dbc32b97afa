package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"RoomChat/logger"
	"RoomChat/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ClientOptions struct {
	SendQueueSize  int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
}

func (o *ClientOptions) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
}

func (o ClientOptions) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

// Client is one websocket connection: a read pump feeding commands in order
// and a write pump draining the send queue.
type Client struct {
	conn *websocket.Conn
	opts ClientOptions
	log  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ Outbox = (*Client)(nil)

func NewClient(conn *websocket.Conn, opts ClientOptions) *Client {
	opts.norm()
	return &Client{
		conn: conn,
		opts: opts,
		log:  logger.With(zap.String("remote", conn.RemoteAddr().String())),
		send: make(chan []byte, opts.SendQueueSize),
		done: make(chan struct{}),
	}
}

// Send queues payload without blocking. A full queue drops it.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run blocks until the connection ends or ctx is cancelled. Each frame is
// passed to handle before the next one is read.
func (c *Client) Run(ctx context.Context, handle func(ctx context.Context, data []byte) error) {
	writerDone := make(chan struct{})
	safe.Go("ws-write", func() {
		defer close(writerDone)
		c.writePump()
	})
	safe.Go("ws-watch", func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	})
	c.readPump(ctx, handle)
	c.Close()
	<-writerDone
}

func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, data []byte) error) {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := handle(ctx, data); err != nil {
			c.log.Warn("frame handling stopped the connection", zap.Error(err))
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Client) logReadError(err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("peer closed", zap.Error(err))
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Info("read timeout", zap.Error(err))
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame too large", zap.Int64("limit", c.opts.MaxMessageSize))
	default:
		c.log.Debug("read error", zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}
