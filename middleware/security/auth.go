package security

import (
	"context"
	"strings"

	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"
	toolsec "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
)

// context keys read by the handlers through CurrentUser
const (
	CtxUserIDKey   = "userID"
	CtxUsernameKey = "username"
)

// Identity is the authenticated user attached to a request.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserLookup confirms that the token subject still exists.
type UserLookup func(ctx context.Context, userID string) (Identity, error)

type Options struct {
	JWT toolsec.Options

	EnableAuthorizationBearer bool   // default true
	CookieName                string // default "token"
	QueryName                 string // default "token"; browsers cannot set headers on a websocket upgrade

	Lookup UserLookup // optional
}

func DefaultOptions(jwt toolsec.Options, lookup UserLookup) *Options {
	return &Options{
		JWT:                       jwt,
		EnableAuthorizationBearer: true,
		CookieName:                "token",
		QueryName:                 "token",
		Lookup:                    lookup,
	}
}

// TokenFrom returns the first token found in header, cookie or query.
func TokenFrom(c *gin.Context, opts *Options) string {
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				if token := strings.TrimSpace(authz[len("bearer "):]); token != "" {
					return token
				}
			}
		}
	}
	if opts.CookieName != "" {
		if token, err := c.Cookie(opts.CookieName); err == nil && token != "" {
			return token
		}
	}
	if opts.QueryName != "" {
		return strings.TrimSpace(c.Query(opts.QueryName))
	}
	return ""
}

// Middleware rejects requests without a valid token with 401.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if token == "" {
			apiresp.GinError(c, errs.ErrTokenMissing.Wrap())
			return
		}
		claims, err := toolsec.Verify(opts.JWT, token)
		if err != nil {
			apiresp.GinError(c, err)
			return
		}
		ident := Identity{ID: claims.UserID(), Username: claims.Username}
		if opts.Lookup != nil {
			ident, err = opts.Lookup(c.Request.Context(), claims.UserID())
			if err != nil {
				if errs.Code(err) == errs.RecordNotFoundError {
					err = errs.ErrTokenInvalid.WrapMsg("user no longer exists", "user", claims.UserID())
				}
				apiresp.GinError(c, err)
				return
			}
		}
		SetUser(c, ident)
		c.Next()
	}
}

func SetUser(c *gin.Context, ident Identity) {
	c.Set(CtxUserIDKey, ident.ID)
	c.Set(CtxUsernameKey, ident.Username)
}

// CurrentUser returns the identity set by Middleware.
func CurrentUser(c *gin.Context) (Identity, bool) {
	id := c.GetString(CtxUserIDKey)
	if id == "" {
		return Identity{}, false
	}
	return Identity{ID: id, Username: c.GetString(CtxUsernameKey)}, true
}
