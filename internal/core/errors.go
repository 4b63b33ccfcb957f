package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when a credential cannot be verified.
	ErrAuth = errors.New("authentication failed")
	// ErrUnauthorized is returned for room and message operations on a
	// connection that has not authenticated.
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyAuthenticated = errors.New("already authenticated as another user")
	ErrSessionClosed        = errors.New("session closed")
	ErrBadPayload           = errors.New("bad payload")
	ErrBackpressure         = errors.New("backpressure")
	// ErrUnavailable is returned when an operation needs a store that is
	// not configured.
	ErrUnavailable = errors.New("store unavailable")
)

// DeliveryError reports a failed push delivery. It never reaches the client.
type DeliveryError struct {
	Tokens int
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push delivery to %d tokens: %v", e.Tokens, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
