package security

import (
	"errors"
	"testing"
	"time"

	"RoomChat/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	req := require.New(t)
	opts := DefaultOptions([]byte("secret"))

	token, exp, err := Generate(opts, "user-1", "alice")
	req.NoError(err)
	req.WithinDuration(time.Now().Add(2*time.Hour), exp, time.Minute)

	claims, err := Verify(opts, token)
	req.NoError(err)
	req.Equal("user-1", claims.UserID())
	req.Equal("alice", claims.Username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	req := require.New(t)

	token, _, err := Generate(DefaultOptions([]byte("secret")), "user-1", "alice")
	req.NoError(err)

	_, err = Verify(DefaultOptions([]byte("other")), token)
	req.True(errors.Is(err, errs.ErrTokenInvalid))
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	opts.TTL = time.Nanosecond
	token, _, err := Generate(opts, "user-1", "alice")
	require.NoError(t, err)
	time.Sleep(2 * time.Second)

	_, err = Verify(opts, token)
	require.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	_, _, err := Generate(Options{Secret: []byte("s"), Alg: "RS256"}, "u", "n")
	require.Error(t, err)
	require.Equal(t, errs.ArgsError, errs.Code(err))
	require.ErrorIs(t, err, errs.ErrArgs)
}

func TestPassword(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("correct horse")
	req.NoError(err)

	ok, err := ComparePassword("correct horse", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword("wrong", hash)
	req.NoError(err)
	req.False(ok)
}
