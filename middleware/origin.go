package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// normalizeOrigin lowercases scheme and host and drops default ports and any
// trailing slash, so "HTTPS://Chat.example:443/" matches "https://chat.example".
func normalizeOrigin(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// OriginChecker reports whether a request's Origin is allowed. "*" allows
// everything; a request without Origin (non-browser client) is allowed.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	if lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	set := lo.SliceToMap(allowed, func(o string) (string, struct{}) {
		return normalizeOrigin(o), struct{}{}
	})
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

// Origin rejects requests from origins that are not allowed with 403.
func Origin(allowed []string) gin.HandlerFunc {
	check := OriginChecker(allowed)
	return func(c *gin.Context) {
		if !check(c.Request) {
			apiresp.GinError(c, errs.ErrNoPermission.WrapMsg("origin not allowed", "origin", c.GetHeader("Origin")))
			return
		}
		c.Next()
	}
}
