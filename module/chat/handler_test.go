package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"RoomChat/middleware"
	"RoomChat/middleware/security"
	"RoomChat/module/chat/model"
	"RoomChat/module/chat/service"
	"RoomChat/module/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// headerAuth trusts X-User; the real middleware is covered in its own package.
func headerAuth(c *gin.Context) {
	id := c.GetHeader("X-User")
	if id == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	security.SetUser(c, security.Identity{ID: id})
	c.Next()
}

func do(r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoomsAPI(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	st := store.NewMemory()
	alice := &model.User{Username: "alice"}
	bob := &model.User{Username: "bob"}
	req.NoError(st.CreateUser(ctx, alice))
	req.NoError(st.CreateUser(ctx, bob))

	r := gin.New()
	NewHandler(service.NewRoomService(st)).Routes(middleware.NewRouter(r, headerAuth))

	w := do(r, http.MethodPost, "/api/chats", alice.ID, nil)
	req.Equal(http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Data service.RoomView `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &created))
	roomID := created.Data.ID
	req.NotEmpty(roomID)

	w = do(r, http.MethodGet, "/api/chats/"+roomID, bob.ID, nil)
	req.Equal(http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, "/api/chats/"+roomID+"/members", alice.ID, gin.H{"usernames": "bob, ghost"})
	req.Equal(http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/chats/"+roomID, bob.ID, nil)
	req.Equal(http.StatusOK, w.Code)

	_, err := st.Append(ctx, alice.ID, roomID, "hi")
	req.NoError(err)

	w = do(r, http.MethodGet, "/api/chats", bob.ID, nil)
	req.Equal(http.StatusOK, w.Code)
	var list struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Unread      int    `json:"unread"`
			LastMessage struct {
				ID      string `json:"id"`
				Author  string `json:"author"`
				Content string `json:"content"`
			} `json:"last_message"`
		} `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &list))
	req.Len(list.Data, 1)
	req.Equal("alice, bob", list.Data[0].Name)
	req.Equal(1, list.Data[0].Unread)
	req.Equal("alice", list.Data[0].LastMessage.Author)
	req.Equal("hi", list.Data[0].LastMessage.Content)

	w = do(r, http.MethodGet, "/api/chats?current="+roomID, bob.ID, nil)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &list))
	req.Equal(0, list.Data[0].Unread)

	w = do(r, http.MethodGet, "/api/chats", "", nil)
	req.Equal(http.StatusUnauthorized, w.Code)
}
