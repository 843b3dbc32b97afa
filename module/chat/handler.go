package chat

import (
	"RoomChat/middleware"
	"RoomChat/middleware/security"
	"RoomChat/module/chat/service"
	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler serves the rooms API under /api/chats. Every route needs auth.
type Handler struct {
	rooms *service.RoomService
}

func NewHandler(rooms *service.RoomService) *Handler {
	return &Handler{rooms: rooms}
}

func (h *Handler) Routes(rt *middleware.Router) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.GET("/api/chats", h.ChatsList, auth)
	rt.POST("/api/chats", h.CreateRoom, auth)
	rt.GET("/api/chats/:room_id", h.GetRoom, auth)
	rt.POST("/api/chats/:room_id/members", h.AddMembers, auth)
}

func currentUser(c *gin.Context) (security.Identity, bool) {
	ident, ok := security.CurrentUser(c)
	if !ok {
		apiresp.GinError(c, errs.ErrTokenMissing.Wrap())
	}
	return ident, ok
}

func (h *Handler) ChatsList(c *gin.Context) {
	ident, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.rooms.ChatsList(c.Request.Context(), ident.ID, c.Query("current"))
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	apiresp.GinSuccess(c, list)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	ident, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateRoomReq
	// an empty body creates an unnamed room
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresp.GinError(c, errs.ErrArgs.WrapMsg("bad room body", "err", err))
			return
		}
	}
	room, err := h.rooms.Create(c.Request.Context(), ident.ID, &req)
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	apiresp.GinSuccess(c, room)
}

func (h *Handler) GetRoom(c *gin.Context) {
	ident, ok := currentUser(c)
	if !ok {
		return
	}
	room, err := h.rooms.Get(c.Request.Context(), ident.ID, c.Param("room_id"))
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	apiresp.GinSuccess(c, room)
}

func (h *Handler) AddMembers(c *gin.Context) {
	ident, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.AddMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.GinError(c, errs.ErrArgs.WrapMsg("bad members body", "err", err))
		return
	}
	room, err := h.rooms.AddMembers(c.Request.Context(), ident.ID, c.Param("room_id"), &req)
	if err != nil {
		apiresp.GinError(c, err)
		return
	}
	apiresp.GinSuccess(c, room)
}
