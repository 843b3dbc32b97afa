package errs

import "net/http"

const (
	ServerInternalError = 500
	ArgsError           = 1001
	NoPermissionError   = 1002
	RecordNotFoundError = 1004
	StaleReferenceError = 1005
	UserExistsError     = 1101
	TokenInvalidError   = 1501
	TokenMissingError   = 1502
	LoginFailedError    = 1503
)

var (
	ErrInternal       = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrNoPermission   = NewCodeError(NoPermissionError, "NoPermissionError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrStaleReference = NewCodeError(StaleReferenceError, "StaleReferenceError")
	ErrUserExists     = NewCodeError(UserExistsError, "UserExistsError")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "TokenInvalidError")
	ErrTokenMissing   = NewCodeError(TokenMissingError, "TokenMissingError")
	ErrLoginFailed    = NewCodeError(LoginFailedError, "LoginFailedError")
)

// HTTPStatus maps an error code to the HTTP status the API answers with.
func HTTPStatus(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case ArgsError:
		return http.StatusBadRequest
	case NoPermissionError:
		return http.StatusForbidden
	case RecordNotFoundError:
		return http.StatusNotFound
	case StaleReferenceError, UserExistsError:
		return http.StatusConflict
	case TokenInvalidError, TokenMissingError, LoginFailedError:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
