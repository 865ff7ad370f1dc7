package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired is the terminal authentication error. Every request that
// cannot be recovered by a credential refresh fails with an error for which
// errors.Is(err, ErrSessionExpired) holds.
var ErrSessionExpired = errors.New("session expired")

var (
	// ErrNoRefreshToken is returned when a request is rejected as
	// unauthenticated and there is no refresh token to recover with.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token available", ErrSessionExpired)

	// ErrReplayRejected is returned when a request that was already replayed
	// with a refreshed credential is rejected again.
	ErrReplayRejected = fmt.Errorf("%w: request rejected after credential refresh", ErrSessionExpired)

	// ErrRefreshFailed is returned to the caller that ran a refresh exchange
	// which did not produce a new access token.
	ErrRefreshFailed = fmt.Errorf("%w: credential refresh failed", ErrSessionExpired)
)

// AuthError carries the terminal authentication cause together with the
// error that triggered it (the rejected response, or the refresh failure).
type AuthError struct {
	Kind  error
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *AuthError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsAuthError reports whether err is a terminal authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsUnauthorized reports whether err is a 401 response from the server.
func IsUnauthorized(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusUnauthorized
}
