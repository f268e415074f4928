package guesttoken

import "errors"

// Step failures. Their messages are safe to return to callers; the wrapped
// upstream detail is not.
//
//nolint:stylecheck,staticcheck // caller-facing text
var (
	ErrUpstreamAuth = errors.New("Failed to get Superset access token")
	ErrUpstreamCSRF = errors.New("Failed to get Superset CSRF token")
	ErrGuestToken   = errors.New("Failed to generate guest token")
)

var ErrUnknownStrategy = errors.New("unknown credential strategy")

const internalErrorMessage = "internal server error"

// PublicMessage returns the caller-facing message for an error produced by
// Service.Issue.
func PublicMessage(err error) string {
	for _, sentinel := range []error{ErrUpstreamAuth, ErrUpstreamCSRF, ErrGuestToken} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return internalErrorMessage
}
