package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	req := require.New(t)

	err := ErrRecordNotFound.WrapMsg("room not found", "room_id", "r1")
	req.True(errors.Is(err, ErrRecordNotFound))
	req.False(errors.Is(err, ErrNoPermission))
	req.Equal(RecordNotFoundError, Code(err))
	req.Contains(err.Error(), "room_id=r1")

	wrapped := fmt.Errorf("lookup: %w", err)
	req.True(errors.Is(wrapped, ErrRecordNotFound))
}

func TestCodeOfPlainError(t *testing.T) {
	req := require.New(t)

	req.Equal(0, Code(nil))
	req.Equal(ServerInternalError, Code(errors.New("boom")))
	req.Equal(ErrInternal, AsCodeError(errors.New("boom")))
}

func TestWithDetailAppends(t *testing.T) {
	req := require.New(t)

	e := ErrArgs.WithDetail("a").WithDetail("b")
	req.Equal("a, b", e.Detail)
	req.Empty(ErrArgs.Detail)
}

func TestHTTPStatus(t *testing.T) {
	req := require.New(t)

	req.Equal(http.StatusForbidden, HTTPStatus(NoPermissionError))
	req.Equal(http.StatusUnauthorized, HTTPStatus(TokenInvalidError))
	req.Equal(http.StatusInternalServerError, HTTPStatus(42))
}

func TestErrPanic(t *testing.T) {
	req := require.New(t)

	req.Nil(ErrPanic(nil))
	err := ErrPanic("kaboom")
	req.Equal(ServerInternalError, Code(err))
	req.Contains(err.Error(), "kaboom")
}
