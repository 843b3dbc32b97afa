package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RoomChat/middleware/security"
	toolsec "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsEnv struct {
	h      *harness
	srv    *Server
	jwt    toolsec.Options
	server *httptest.Server
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	srv := h.server(NewMemoryBus(), nil, "n1")
	jwtOpts := toolsec.DefaultOptions([]byte("test-secret"))

	r := gin.New()
	auth := security.Middleware(security.DefaultOptions(jwtOpts, nil))
	ws := NewWSServer(srv, []string{"*"}, ClientOptions{PongWait: 5 * time.Second, MaxMessageSize: 1024})
	r.GET("/ws/chat/:room_id", auth, ws.HandleWS)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &wsEnv{h: h, srv: srv, jwt: jwtOpts, server: server}
}

func (e *wsEnv) url(t *testing.T, user security.Identity, roomID string) string {
	t.Helper()
	token, _, err := toolsec.Generate(e.jwt, user.ID, user.Username)
	require.NoError(t, err)
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/chat/" + roomID + "?token=" + token
}

func (e *wsEnv) dial(t *testing.T, user security.Identity, roomID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url(t, user, roomID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	// admission finishes after the upgrade; wait until the handle is registered
	require.Eventually(t, func() bool {
		handles, err := e.h.presence.HandlesOf(context.Background(), user.ID)
		return err == nil && len(handles) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWSRefusesNonMember(t *testing.T) {
	env := newWSEnv(t)
	a, d := env.h.user(t, "alice"), env.h.user(t, "dave")
	roomID := env.h.room(t, a)

	_, resp, err := websocket.DefaultDialer.Dial(env.url(t, d, roomID), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSRequiresToken(t *testing.T) {
	env := newWSEnv(t)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat/any"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSEndToEnd(t *testing.T) {
	req := require.New(t)
	env := newWSEnv(t)
	a, b := env.h.user(t, "alice"), env.h.user(t, "bob")
	roomID := env.h.room(t, a, b)

	connA := env.dial(t, a, roomID)
	connB := env.dial(t, b, roomID)

	req.NoError(connA.WriteJSON(InboundFrame{Command: CmdNewMessage, RoomID: roomID, From: a.ID, Message: "hello"}))

	got := readFrame(t, connA)
	req.Equal(CmdNewMessage, got["command"])
	req.Equal("hello", got["message"].(map[string]any)["content"])

	got = readFrame(t, connB)
	req.Equal(CmdNewMessage, got["command"])
	got = readFrame(t, connB)
	req.Equal(CmdChatsListMessage, got["command"])
	req.Equal(roomID, got["room_id"])

	req.NoError(connB.WriteJSON(InboundFrame{Command: CmdFetchMessages, RoomID: roomID}))
	got = readFrame(t, connB)
	req.Equal(CmdMessages, got["command"])
	msgs := got["messages"].([]any)
	req.Len(msgs, 1)
	req.Equal("alice", msgs[0].(map[string]any)["author"])

	// closing the socket deregisters the handle
	req.NoError(connB.Close())
	req.Eventually(func() bool {
		handles, err := env.h.presence.HandlesOf(context.Background(), b.ID)
		return err == nil && len(handles) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSRejectsOversizedFrame(t *testing.T) {
	env := newWSEnv(t)
	a := env.h.user(t, "alice")
	roomID := env.h.room(t, a)
	conn := env.dial(t, a, roomID)

	big := strings.Repeat("x", 4096)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
