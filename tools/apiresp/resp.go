package apiresp

import (
	"net/http"

	"RoomChat/logger"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Msg is the JSON envelope of every API answer.
type Msg struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{Code: 0, Msg: "ok", Data: data}
}

// Fail renders err with the status mapped from its code. Unknown errors are
// logged and answered as ServerInternalError without detail.
func Fail(err error) (int, *Msg) {
	code := errs.Code(err)
	if code == errs.ServerInternalError {
		return http.StatusInternalServerError, &Msg{Code: code, Msg: errs.ErrInternal.Msg}
	}
	ce := errs.AsCodeError(err)
	return errs.HTTPStatus(code), &Msg{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail}
}

func GinSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Success(data))
}

func GinError(c *gin.Context, err error) {
	status, body := Fail(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
