package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"RoomChat/middleware/security"
	"RoomChat/module/chat/model"
	"RoomChat/module/store"
	"RoomChat/service/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// recorder is an Outbox keeping every frame it accepts.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (r *recorder) Send(p []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.frames = append(r.frames, p)
	return true
}

func (r *recorder) decoded(t *testing.T) []map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, 0, len(r.frames))
	for _, f := range r.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (r *recorder) commands(t *testing.T) []string {
	var out []string
	for _, m := range r.decoded(t) {
		out = append(out, m["command"].(string))
	}
	return out
}

func (r *recorder) count(t *testing.T, command string) int {
	n := 0
	for _, c := range r.commands(t) {
		if c == command {
			n++
		}
	}
	return n
}

func (r *recorder) last(t *testing.T) map[string]any {
	frames := r.decoded(t)
	require.NotEmpty(t, frames)
	return frames[len(frames)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

type harness struct {
	store    *store.Memory
	rdb      *redis.Client
	presence *storage.RedisPresence
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &harness{
		store:    store.NewMemory(),
		rdb:      rdb,
		presence: storage.NewRedisPresence(rdb, "test:", time.Hour),
	}
}

func (h *harness) server(bus Bus, repo Repository, node string) *Server {
	if repo == nil {
		repo = h.store
	}
	return NewServer(Options{NodeID: node, FetchLimit: 20, IOTimeout: 2 * time.Second}, repo, h.presence, bus)
}

func (h *harness) user(t *testing.T, name string) security.Identity {
	t.Helper()
	u := &model.User{Username: name, PasswordHash: "x"}
	require.NoError(t, h.store.CreateUser(context.Background(), u))
	return security.Identity{ID: u.ID, Username: u.Username}
}

func (h *harness) room(t *testing.T, admin security.Identity, members ...security.Identity) string {
	t.Helper()
	ctx := context.Background()
	r := &model.Room{AdminID: admin.ID}
	require.NoError(t, h.store.CreateRoom(ctx, r))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	require.NoError(t, h.store.AddMembers(ctx, r.ID, ids))
	return r.ID
}

func connect(t *testing.T, srv *Server, user security.Identity, roomID string) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	sess := srv.NewSession(user, roomID, rec)
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(func() { _ = sess.Disconnect(context.Background()) })
	return sess, rec
}

func send(t *testing.T, sess *Session, frame InboundFrame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, sess.HandleCommand(context.Background(), raw))
}
