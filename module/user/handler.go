package user

import (
	"net/http"

	"RoomChat/middleware"
	"RoomChat/middleware/security"
	"RoomChat/module/user/service"
	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// CookieOptions controls the token cookie set on login.
type CookieOptions struct {
	Name   string // default "token"
	Secure bool
}

type Handler struct {
	svc    *service.UserService
	cookie CookieOptions
}

func NewHandler(svc *service.UserService, cookie CookieOptions) *Handler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &Handler{svc: svc, cookie: cookie}
}

// Routes mounts the user API under /api/users.
func (h *Handler) Routes(rt *middleware.Router) {
	rt.POST("/api/users/register", h.Register, middleware.RouteOpt{})
	rt.POST("/api/users/login", h.Login, middleware.RouteOpt{})
	rt.POST("/api/users/logout", h.Logout, middleware.RouteOpt{})
	rt.GET("/api/users/me", h.Me, middleware.RouteOpt{IsAuth: true})
}

func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.GinError(c, errs.ErrArgs.WrapMsg("bad register body", "err", err))
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	h.setCookie(c, sess)
	apiresp.GinSuccess(c, sess)
}

func (h *Handler) Login(c *gin.Context) {
	var req service.LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.GinError(c, errs.ErrArgs.WrapMsg("bad login body", "err", err))
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	h.setCookie(c, sess)
	apiresp.GinSuccess(c, sess)
}

// Logout only clears the cookie; issued tokens stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	apiresp.GinSuccess(c, nil)
}

func (h *Handler) Me(c *gin.Context) {
	ident, ok := security.CurrentUser(c)
	if !ok {
		apiresp.GinError(c, errs.ErrTokenMissing.Wrap())
		return
	}
	apiresp.GinSuccess(c, ident)
}

func (h *Handler) setCookie(c *gin.Context, sess *service.Session) {
	maxAge := int(h.svc.JWT().TTL.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, sess.Token, maxAge, "/", "", h.cookie.Secure, true)
}
