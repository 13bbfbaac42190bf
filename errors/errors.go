package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Realtime core
	ErrAuthRejected       = fmt.Errorf("authentication rejected")
	ErrTransport          = fmt.Errorf("transport error")
	ErrPersistenceFailure = fmt.Errorf("persistence failure")
	ErrDeliveryDropped    = fmt.Errorf("delivery dropped")
	ErrNotLive            = fmt.Errorf("client is not live")
	ErrSessionExists      = fmt.Errorf("session already registered")
	ErrIllegalTransition  = fmt.Errorf("illegal session state transition")
	ErrSinkClosed         = fmt.Errorf("sink closed")

	// Accounts
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidRequest     = fmt.Errorf("invalid request")

	// Messages
	ErrInvalidMessage  = fmt.Errorf("invalid message")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrForbidden       = fmt.Errorf("forbidden")
)

// Is and As are re-exported so callers importing this package under its
// default name keep access to the standard helpers.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)

// StatusCode maps a domain error to the HTTP status returned by the REST layer.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrAuthRejected), Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case Is(err, ErrForbidden):
		return http.StatusForbidden
	case Is(err, ErrMessageNotFound), Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case Is(err, ErrUserAlreadyExists):
		return http.StatusUnprocessableEntity
	case Is(err, ErrInvalidMessage), Is(err, ErrInvalidRequest), Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case Is(err, ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
