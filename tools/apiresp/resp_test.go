package apiresp

import (
	"errors"
	"net/http"
	"testing"

	"RoomChat/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestFailMapsCode(t *testing.T) {
	req := require.New(t)

	status, body := Fail(errs.ErrNoPermission.WrapMsg("not a member", "room", "r1"))
	req.Equal(http.StatusForbidden, status)
	req.Equal(errs.NoPermissionError, body.Code)
	req.Contains(body.Detail, "room=r1")

	status, body = Fail(errors.New("db exploded"))
	req.Equal(http.StatusInternalServerError, status)
	req.Equal(errs.ServerInternalError, body.Code)
	req.Empty(body.Detail)
}

func TestSuccess(t *testing.T) {
	m := Success(map[string]int{"n": 1})
	require.Equal(t, 0, m.Code)
	require.Equal(t, map[string]int{"n": 1}, m.Data)
}
