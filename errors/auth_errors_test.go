package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKind(t *testing.T) {
	err := NewOwnershipViolation("srv-1")
	assert.True(t, IsKind(err, KindOwnershipViolation))
	assert.False(t, IsKind(err, KindReuseDetected))

	wrapped := fmt.Errorf("request failed: %w", err)
	assert.True(t, IsKind(wrapped, KindOwnershipViolation))

	assert.False(t, IsKind(nil, KindOwnershipViolation))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindOwnershipViolation))
}

func TestIsSecurity(t *testing.T) {
	security := []*AuthError{
		NewOwnershipViolation("srv-1"),
		NewIntegrityViolation("hash mismatch"),
		NewReuseDetected("srv-1"),
		NewSSRFBlocked("private address"),
	}
	for _, err := range security {
		assert.True(t, IsSecurity(err), err.Kind)
	}

	benign := []*AuthError{
		NewConfigurationError("missing secret"),
		NewNetworkError("timeout", nil),
		NewNoRefreshToken("srv-1"),
		NewSessionNotFound("state"),
		NewRefreshInProgress("srv-1"),
	}
	for _, err := range benign {
		assert.False(t, IsSecurity(err), err.Kind)
	}
}

func TestAuthError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewNetworkError("token endpoint request failed", cause)

	assert.Contains(t, err.Error(), "network_error")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, err.Unwrap())
}
