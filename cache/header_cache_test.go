package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizationHeaderCache(t *testing.T) {
	c := NewAuthorizationHeaderCache()

	_, ok := c.GetAuthorization("srv-1")
	assert.False(t, ok)

	c.SetAuthorization("srv-1", "Bearer token-a")
	header, ok := c.GetAuthorization("srv-1")
	assert.True(t, ok)
	assert.Equal(t, "Bearer token-a", header)

	// Overwrite on rotation.
	c.SetAuthorization("srv-1", "Bearer token-b")
	header, _ = c.GetAuthorization("srv-1")
	assert.Equal(t, "Bearer token-b", header)

	c.DeleteAuthorization("srv-1")
	_, ok = c.GetAuthorization("srv-1")
	assert.False(t, ok)

	// Deleting an absent entry is fine.
	c.DeleteAuthorization("never-set")
}
