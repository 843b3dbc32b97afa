package chat

import (
	"context"
	"sync"
	"time"

	"RoomChat/logger"
	"RoomChat/middleware/security"
	"RoomChat/module/chat/model"
	"RoomChat/service/storage"
	"RoomChat/tools/errs"

	"go.uber.org/zap"
)

// Repository is what sessions need from persistent storage.
type Repository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	Append(ctx context.Context, authorID, roomID, content string) (*model.Message, error)
	LastN(ctx context.Context, roomID string, n, offset int) ([]*model.Message, error)
	MarkRead(ctx context.Context, userID string, messageIDs ...int64) error
}

type Options struct {
	NodeID        string
	FetchLimit    int           // messages returned by fetch_messages
	IOTimeout     time.Duration // per storage/registry call
	ReadQueueSize int           // pending read marks per session
}

func (o *Options) norm() {
	if o.NodeID == "" {
		o.NodeID = "node"
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = 20
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 5 * time.Second
	}
	if o.ReadQueueSize <= 0 {
		o.ReadQueueSize = 64
	}
}

// Server owns the collaborators shared by every session on this node.
type Server struct {
	opts     Options
	repo     Repository
	presence storage.PresenceRegistry
	bus      Bus
	disp     *Dispatcher

	// parent of every session context; cancelled by Shutdown
	base context.Context
	stop context.CancelFunc
	mu   sync.Mutex
	live sync.WaitGroup // sessions between admission and Disconnect
}

func NewServer(opts Options, repo Repository, presence storage.PresenceRegistry, bus Bus) *Server {
	opts.norm()
	base, stop := context.WithCancel(context.Background())
	s := &Server{
		base:     base,
		stop:     stop,
		opts:     opts,
		repo:     repo,
		presence: presence,
		bus:      bus,
		disp:     NewDispatcher(),
	}
	s.disp.Register(CmdFetchMessages, s.handleFetchMessages)
	s.disp.Register(CmdNewMessage, s.handleNewMessage)
	return s
}

// Shutdown cancels every session on this node and waits until they have
// disconnected or ctx is done. New sessions are refused afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.WrapMsg(ctx.Err(), "sessions still open")
	}
}

// track reserves a slot for a session being admitted; false once shut down.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return false
	}
	s.live.Add(1)
	return true
}

func (s *Server) untrack() { s.live.Done() }

// Authorize is the membership guard run before a session is admitted.
func (s *Server) Authorize(ctx context.Context, userID, roomID string) error {
	ctx, cancel := s.ioCtx(ctx)
	defer cancel()
	ok, err := s.repo.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNoPermission.WrapMsg("not a member of the room", "user", userID, "room", roomID)
	}
	return nil
}

// NewSession creates a session that writes to out. It is not admitted until
// Connect succeeds.
func (s *Server) NewSession(user security.Identity, roomID string, out Outbox) *Session {
	return newSession(s, NewHandle(s.opts.NodeID), user, roomID, out)
}

func (s *Server) ioCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.IOTimeout)
}

// fanoutChatsList pushes the chats list update to every open handle of the
// recipients. A failed delivery only skips that handle.
func (s *Server) fanoutChatsList(ctx context.Context, roomID string, recipients []string, ev Event) {
	if len(recipients) == 0 {
		return
	}
	handles, err := s.presence.HandlesOfMany(ctx, recipients)
	if err != nil {
		logger.Error("chats list lookup failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	sent := 0
	for _, user := range recipients {
		for _, h := range handles[user] {
			if err := s.bus.PublishToHandle(ctx, h, ev); err != nil {
				logger.Warn("chats list delivery failed", zap.String("handle", h), zap.Error(err))
				continue
			}
			sent++
		}
	}
	logger.Debug("chats list fanout", zap.String("room", roomID), zap.Int("handles", sent))
}
