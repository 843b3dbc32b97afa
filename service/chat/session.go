package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"RoomChat/logger"
	"RoomChat/middleware/security"
	"RoomChat/tools/errs"
	"RoomChat/tools/safe"

	"go.uber.org/zap"
)

type State int32

const (
	StateNew State = iota
	StateAdmitted
	StateRefused // terminal, membership check failed
	StateClosed  // terminal
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateAdmitted:
		return "admitted"
	case StateRefused:
		return "refused"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Outbox is the write side of a connection. Send must not block; it reports
// false when the payload was dropped.
type Outbox interface {
	Send(payload []byte) bool
}

// Session is one socket viewing one room.
type Session struct {
	srv    *Server
	handle string
	user   security.Identity
	roomID string
	out    Outbox
	log    *zap.Logger

	mu    sync.Mutex // serializes Connect and Disconnect
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	reads  chan int64
}

func newSession(srv *Server, handle string, user security.Identity, roomID string, out Outbox) *Session {
	ctx, cancel := context.WithCancel(srv.base)
	return &Session{
		srv:    srv,
		handle: handle,
		user:   user,
		roomID: roomID,
		out:    out,
		log: logger.With(zap.String("handle", handle), zap.String("user", user.ID),
			zap.String("room", roomID)),
		ctx:    ctx,
		cancel: cancel,
		reads:  make(chan int64, srv.opts.ReadQueueSize),
	}
}

func (s *Session) Handle() string          { return s.handle }
func (s *Session) RoomID() string          { return s.roomID }
func (s *Session) User() security.Identity { return s.user }
func (s *Session) State() State            { return State(s.state.Load()) }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Connect admits the session: membership check, group subscription, then
// presence registration. The subscription is live before the handle becomes
// visible in the registry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateNew {
		return errs.ErrArgs.WrapMsg("session already connected", "state", s.State().String())
	}
	if !s.srv.track() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		return errs.ErrInternal.WrapMsg("server is shutting down")
	}
	if err := s.srv.Authorize(ctx, s.user.ID, s.roomID); err != nil {
		s.state.Store(int32(StateRefused))
		s.cancel()
		s.srv.untrack()
		return err
	}

	ctx, cancel := s.srv.ioCtx(ctx)
	defer cancel()
	bus := s.srv.bus
	if err := bus.Attach(ctx, s.handle, s); err != nil {
		return s.abort(err)
	}
	if err := bus.Subscribe(ctx, s.roomID, s.handle); err != nil {
		_ = bus.Detach(ctx, s.handle)
		return s.abort(err)
	}
	if err := s.srv.presence.Register(ctx, s.user.ID, s.handle); err != nil {
		_ = bus.Unsubscribe(ctx, s.roomID, s.handle)
		_ = bus.Detach(ctx, s.handle)
		return s.abort(err)
	}
	s.state.Store(int32(StateAdmitted))
	safe.Go("read-marker:"+s.handle, s.markReadLoop)
	s.log.Info("session admitted")
	return nil
}

func (s *Session) abort(err error) error {
	s.state.Store(int32(StateClosed))
	s.cancel()
	s.srv.untrack()
	s.log.Error("admission failed", zap.Error(err))
	return err
}

// HandleCommand processes one inbound frame to completion. Malformed frames
// and unknown commands are ignored; a failing command is answered with
// reload_page.
func (s *Session) HandleCommand(ctx context.Context, raw []byte) error {
	if s.State() != StateAdmitted {
		return errs.ErrArgs.WrapMsg("session not admitted", "state", s.State().String())
	}
	f, err := ParseFrameJSON(raw)
	if err != nil {
		s.log.Debug("frame ignored", zap.Error(err))
		return nil
	}
	h := s.srv.disp.GetHandler(f.Command)
	if h == nil {
		s.log.Debug("unknown command ignored", zap.String("command", f.Command))
		return nil
	}
	if err := h(ctx, s, f); err != nil {
		if errs.Code(err) == errs.ServerInternalError {
			s.log.Error("command failed", zap.String("command", f.Command), zap.Error(err))
		} else {
			s.log.Warn("command rejected", zap.String("command", f.Command), zap.Error(err))
		}
		s.reply(BuildReload())
	}
	return nil
}

func (s *Session) reply(payload []byte) {
	if !s.out.Send(payload) {
		s.log.Debug("reply dropped")
	}
}

// Receive is called by the bus. New messages from other authors are also
// queued to be marked read, since this user is looking at the room.
func (s *Session) Receive(ev Event) {
	if s.State() != StateAdmitted {
		return
	}
	if !s.out.Send(ev.Payload) {
		s.log.Debug("event dropped, send queue full", zap.String("command", ev.Command))
		return
	}
	if ev.Command != CmdNewMessage || ev.MessageID == 0 || ev.AuthorID == s.user.ID {
		return
	}
	select {
	case s.reads <- ev.MessageID:
	default:
		s.log.Debug("read mark dropped", zap.Int64("message", ev.MessageID))
	}
}

func (s *Session) markReadLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case id := <-s.reads:
			batch := []int64{id}
		drain:
			for {
				select {
				case next := <-s.reads:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			ctx, cancel := s.srv.ioCtx(context.Background())
			if err := s.srv.repo.MarkRead(ctx, s.user.ID, batch...); err != nil {
				s.log.Warn("mark read failed", zap.Int("messages", len(batch)), zap.Error(err))
			}
			cancel()
		}
	}
}

// Disconnect unsubscribes and deregisters the handle. Calling it again, or on
// a session that was never admitted, does nothing.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateClosed, StateRefused:
		return nil
	case StateNew:
		s.state.Store(int32(StateClosed))
		s.cancel()
		return nil
	}
	s.state.Store(int32(StateClosed))
	s.cancel()
	defer s.srv.untrack()

	ctx, cancel := s.srv.ioCtx(context.WithoutCancel(ctx))
	defer cancel()
	bus := s.srv.bus
	if err := bus.Unsubscribe(ctx, s.roomID, s.handle); err != nil {
		s.log.Warn("unsubscribe failed", zap.Error(err))
	}
	if err := bus.Detach(ctx, s.handle); err != nil {
		s.log.Warn("detach failed", zap.Error(err))
	}
	if err := s.srv.presence.Deregister(ctx, s.user.ID, s.handle); err != nil {
		s.log.Warn("deregister failed", zap.Error(err))
	}
	s.log.Info("session closed")
	return nil
}
