package errors

import (
	goerrors "errors"
	"fmt"
)

// Kind classifies authorization failures so that security-class outcomes
// are distinguishable from transient ones at the type level.
type Kind string

const (
	KindConfiguration      Kind = "configuration_error"
	KindOwnershipViolation Kind = "ownership_violation"
	KindIntegrityViolation Kind = "integrity_violation"
	KindReuseDetected      Kind = "reuse_detected"
	KindSSRFBlocked        Kind = "ssrf_blocked"
	KindInvalidURL         Kind = "invalid_url"
	KindNetwork            Kind = "network_error"
	KindNoRefreshToken     Kind = "no_refresh_token"
	KindSessionExpired     Kind = "session_expired"
	KindSessionNotFound    Kind = "session_not_found"
	KindNotFound           Kind = "not_found"
	KindRefreshInProgress  Kind = "refresh_in_progress"
)

// AuthError is the common error type for the authorization core.
type AuthError struct {
	Kind        Kind
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsSecurity reports whether the error is a security-class failure.
// Security-class failures must never be swallowed without a log/metric event.
func (e *AuthError) IsSecurity() bool {
	switch e.Kind {
	case KindOwnershipViolation, KindIntegrityViolation, KindReuseDetected, KindSSRFBlocked:
		return true
	}
	return false
}

// IsKind reports whether err is an AuthError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *AuthError
	if goerrors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// IsSecurity reports whether err is a security-class AuthError.
func IsSecurity(err error) bool {
	var ae *AuthError
	if goerrors.As(err, &ae) {
		return ae.IsSecurity()
	}
	return false
}

// Common error constructors

func NewConfigurationError(description string) *AuthError {
	return &AuthError{Kind: KindConfiguration, Description: description}
}

func NewOwnershipViolation(serverID string) *AuthError {
	return &AuthError{
		Kind:        KindOwnershipViolation,
		Description: fmt.Sprintf("caller does not own server %s", serverID),
	}
}

func NewIntegrityViolation(description string) *AuthError {
	return &AuthError{Kind: KindIntegrityViolation, Description: description}
}

func NewReuseDetected(serverID string) *AuthError {
	return &AuthError{
		Kind:        KindReuseDetected,
		Description: fmt.Sprintf("refresh token for server %s has already been used", serverID),
	}
}

func NewSSRFBlocked(description string) *AuthError {
	return &AuthError{Kind: KindSSRFBlocked, Description: description}
}

func NewInvalidURL(description string) *AuthError {
	return &AuthError{Kind: KindInvalidURL, Description: description}
}

func NewNetworkError(description string, err error) *AuthError {
	return &AuthError{Kind: KindNetwork, Description: description, Err: err}
}

func NewNoRefreshToken(serverID string) *AuthError {
	return &AuthError{
		Kind:        KindNoRefreshToken,
		Description: fmt.Sprintf("no refresh token stored for server %s", serverID),
	}
}

func NewSessionExpired(state string) *AuthError {
	return &AuthError{
		Kind:        KindSessionExpired,
		Description: fmt.Sprintf("authorization session %s has expired", state),
	}
}

func NewSessionNotFound(state string) *AuthError {
	return &AuthError{
		Kind:        KindSessionNotFound,
		Description: fmt.Sprintf("authorization session %s not found", state),
	}
}

func NewNotFound(what, id string) *AuthError {
	return &AuthError{
		Kind:        KindNotFound,
		Description: fmt.Sprintf("%s %s not found", what, id),
	}
}

func NewRefreshInProgress(serverID string) *AuthError {
	return &AuthError{
		Kind:        KindRefreshInProgress,
		Description: fmt.Sprintf("a token refresh for server %s is already in progress", serverID),
	}
}
