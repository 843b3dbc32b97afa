package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"RoomChat/tools/errs"
	toolsec "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(opts *Options) *gin.Engine {
	r := gin.New()
	r.GET("/me", Middleware(opts), func(c *gin.Context) {
		ident, _ := CurrentUser(c)
		c.JSON(http.StatusOK, ident)
	})
	return r
}

func TestTokenSources(t *testing.T) {
	jwtOpts := toolsec.DefaultOptions([]byte("secret"))
	token, _, err := toolsec.Generate(jwtOpts, "u1", "alice")
	require.NoError(t, err)
	r := newEngine(DefaultOptions(jwtOpts, nil))

	cases := map[string]func(*http.Request){
		"bearer": func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) },
		"cookie": func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "token", Value: token}) },
		"query": func(req *http.Request) {
			q := req.URL.Query()
			q.Set("token", token)
			req.URL.RawQuery = q.Encode()
		},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			set(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			require.JSONEq(t, `{"id":"u1","username":"alice"}`, w.Body.String())
		})
	}
}

func TestMissingAndInvalidToken(t *testing.T) {
	jwtOpts := toolsec.DefaultOptions([]byte("secret"))
	r := newEngine(DefaultOptions(jwtOpts, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLookupRejectsDeletedUser(t *testing.T) {
	jwtOpts := toolsec.DefaultOptions([]byte("secret"))
	token, _, err := toolsec.Generate(jwtOpts, "gone", "ghost")
	require.NoError(t, err)
	lookup := func(_ context.Context, id string) (Identity, error) {
		return Identity{}, errs.ErrRecordNotFound.WrapMsg("user not found", "user", id)
	}
	r := newEngine(DefaultOptions(jwtOpts, lookup))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
