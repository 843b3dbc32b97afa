package global

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RoomChat/global/config"
	"RoomChat/service/chat"
	"RoomChat/service/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.NodeID = "test-node"
	cfg.Redis.Addr = mr.Addr()
	cfg.Postgres.DSN = ""
	cfg.Nats.Enabled = false
	cfg.JWT.Secret = "test-secret"
	cfg.Session.PongWait = 5 * time.Second
	return cfg
}

func boot(t *testing.T, cfg config.AppConfig) (*App, *httptest.Server) {
	t.Helper()
	app, err := ConfigAll(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Engine())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Close(ctx)
	})
	return app, srv
}

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func (c *apiClient) call(method, path string, body any, out any) int {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		env := struct {
			Data any `json:"data"`
		}{Data: out}
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode
}

func register(t *testing.T, base, name string) *apiClient {
	t.Helper()
	c := &apiClient{t: t, base: base}
	var sess struct {
		Token string `json:"token"`
	}
	code := c.call(http.MethodPost, "/api/users/register", map[string]string{"username": name, "password": "password1"}, &sess)
	require.Equal(t, http.StatusOK, code)
	c.token = sess.Token
	return c
}

func dial(t *testing.T, base, roomID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/chat/" + roomID + "?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// waitFor reads frames until one carries the wanted command.
func waitFor(t *testing.T, ws *websocket.Conn, command string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err)
		var f map[string]any
		require.NoError(t, json.Unmarshal(raw, &f))
		if f["command"] == command {
			return f
		}
	}
}

func TestHealthz(t *testing.T) {
	_, srv := boot(t, testConfig(t))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomChatEndToEnd(t *testing.T) {
	req := require.New(t)
	_, srv := boot(t, testConfig(t))

	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")

	var room struct {
		ID string `json:"id"`
	}
	req.Equal(http.StatusOK, alice.call(http.MethodPost, "/api/chats", map[string]string{"room_name": "general"}, &room))
	req.NotEmpty(room.ID)
	req.Equal(http.StatusOK, alice.call(http.MethodPost, "/api/chats/"+room.ID+"/members", map[string]string{"usernames": "bob"}, nil))

	aws := dial(t, srv.URL, room.ID, alice.token)
	bws := dial(t, srv.URL, room.ID, bob.token)

	req.NoError(aws.WriteJSON(map[string]any{
		"command": "new_message",
		"room_id": room.ID,
		"message": "hello bob",
	}))

	got := waitFor(t, bws, chat.CmdNewMessage)
	msg := got["message"].(map[string]any)
	req.Equal("alice", msg["author"])
	req.Equal("hello bob", msg["content"])

	own := waitFor(t, aws, chat.CmdNewMessage)
	req.Equal("hello bob", own["message"].(map[string]any)["content"])

	req.NoError(bws.WriteJSON(map[string]any{"command": "fetch_messages", "room_id": room.ID}))
	history := waitFor(t, bws, chat.CmdMessages)
	req.Len(history["messages"], 1)

	var list []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Unread int    `json:"unread"`
	}
	req.Equal(http.StatusOK, bob.call(http.MethodGet, "/api/chats?current="+room.ID, nil, &list))
	req.Len(list, 1)
	req.Equal("general", list[0].Name)
	req.Equal(0, list[0].Unread)
}

func TestNonMemberSocketIsForbidden(t *testing.T) {
	_, srv := boot(t, testConfig(t))
	alice := register(t, srv.URL, "alice")
	mallory := register(t, srv.URL, "mallory")

	var room struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK, alice.call(http.MethodPost, "/api/chats", nil, &room))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + room.ID + "?token=" + mallory.token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConfigBusUsesNats(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	ns := natsserver.RunServer(&opts)
	t.Cleanup(ns.Shutdown)

	cfg := testConfig(t)
	cfg.Nats.Enabled = true
	cfg.Nats.Servers = []string{ns.ClientURL()}

	app, srv := boot(t, cfg)
	require.NotNil(t, app.Nats)
	_, ok := app.Bus.(*chat.NatsBus)
	require.True(t, ok)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCloseReleasesRedis(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	app, err := ConfigAll(context.Background(), cfg)
	req.NoError(err)

	// a second holder keeps the shared client open across a normal close
	_, err = redis.Acquire(redis.Config{Addr: cfg.Redis.Addr})
	req.NoError(err)
	req.Equal(2, redis.Refs())

	app.Close(context.Background())
	req.Equal(1, redis.Refs())
	req.NoError(redis.Release())
	req.Zero(redis.Refs())
}

func TestCloseForcesRedisAfterDeadline(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	app, err := ConfigAll(context.Background(), cfg)
	req.NoError(err)

	_, err = redis.Acquire(redis.Config{Addr: cfg.Redis.Addr})
	req.NoError(err)
	req.Equal(2, redis.Refs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	app.Close(ctx)
	req.Zero(redis.Refs())
}
