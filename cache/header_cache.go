package cache

import (
	"sync"

	"github.com/connectkit/mcpauth/domain"
)

// AuthorizationHeaderCache keeps the live outbound Authorization header per
// server connection. The refresh engine rewrites an entry after every
// rotation so in-flight transports pick up the new token without a
// separate round trip.
type AuthorizationHeaderCache struct {
	mu      sync.RWMutex
	headers map[string]string
}

var _ domain.HeaderCache = (*AuthorizationHeaderCache)(nil)

// NewAuthorizationHeaderCache creates an empty header cache.
func NewAuthorizationHeaderCache() *AuthorizationHeaderCache {
	return &AuthorizationHeaderCache{
		headers: make(map[string]string),
	}
}

// SetAuthorization stores the header value for a server.
func (c *AuthorizationHeaderCache) SetAuthorization(serverID, header string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[serverID] = header
}

// GetAuthorization returns the cached header, if any.
func (c *AuthorizationHeaderCache) GetAuthorization(serverID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	header, ok := c.headers[serverID]
	return header, ok
}

// DeleteAuthorization drops the cached header for a server.
func (c *AuthorizationHeaderCache) DeleteAuthorization(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.headers, serverID)
}
