package global

import (
	"net/http"

	"RoomChat/middleware"
	"RoomChat/middleware/security"
	chatapi "RoomChat/module/chat"
	"RoomChat/module/user"
	"RoomChat/service/chat"

	"github.com/gin-gonic/gin"
)

// Engine mounts every HTTP and websocket route on a new gin engine.
func (a *App) Engine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.GinLogger(), middleware.GinRecovery())

	mgr := middleware.NewManager()
	mgr.Add(middleware.Origin(a.Cfg.HTTP.AllowedOrigins))
	r.Use(mgr.Use())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": a.Cfg.NodeID})
	})

	auth := security.Middleware(security.DefaultOptions(a.Users.JWT(), a.Users.Lookup))
	rt := middleware.NewRouter(r, auth)

	user.NewHandler(a.Users, user.CookieOptions{}).Routes(rt)
	chatapi.NewHandler(a.Rooms).Routes(rt)

	s := a.Cfg.Session
	ws := chat.NewWSServer(a.Chat, a.Cfg.HTTP.AllowedOrigins, chat.ClientOptions{
		SendQueueSize:  s.SendQueueSize,
		MaxMessageSize: s.MaxMessageSize,
		WriteWait:      s.WriteWait,
		PongWait:       s.PongWait,
	})
	rt.GET("/ws/chat/:room_id", ws.HandleWS, middleware.RouteOpt{IsAuth: true})
	return r
}
