package chat

import (
	"context"
	"net/http"

	"RoomChat/logger"
	"RoomChat/middleware"
	"RoomChat/middleware/security"
	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSServer serves GET /ws/chat/:room_id.
type WSServer struct {
	srv      *Server
	upgrader websocket.Upgrader
	opts     ClientOptions
}

func NewWSServer(srv *Server, allowedOrigins []string, opts ClientOptions) *WSServer {
	opts.norm()
	return &WSServer{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     middleware.OriginChecker(allowedOrigins),
		},
		opts: opts,
	}
}

// HandleWS refuses non-members with 403 before upgrading; the auth
// middleware has already attached the user.
func (w *WSServer) HandleWS(c *gin.Context) {
	user, ok := security.CurrentUser(c)
	if !ok {
		apiresp.GinError(c, errs.ErrTokenMissing.Wrap())
		return
	}
	roomID := c.Param("room_id")
	if err := w.srv.Authorize(c.Request.Context(), user.ID, roomID); err != nil {
		apiresp.GinError(c, err)
		return
	}

	ws, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already answered the request
		logger.Info("upgrade websocket failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	client := NewClient(ws, w.opts)
	sess := w.srv.NewSession(user, roomID, client)
	if err := sess.Connect(context.Background()); err != nil {
		code := websocket.CloseInternalServerErr
		if errs.Code(err) == errs.NoPermissionError {
			code = websocket.ClosePolicyViolation
		}
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, http.StatusText(errs.HTTPStatus(errs.Code(err)))))
		_ = ws.Close()
		return
	}
	defer func() { _ = sess.Disconnect(context.Background()) }()

	client.Run(sess.Context(), sess.HandleCommand)
}
