package domain

import "fmt"

// Provider identifies the OAuth provider flavor behind an MCP server
// connection. The set is closed so that adding a provider is a
// compile-time-checked change rather than a string comparison.
type Provider string

const (
	ProviderNotion  Provider = "notion"
	ProviderGitHub  Provider = "github"
	ProviderGoogle  Provider = "google"
	ProviderSlack   Provider = "slack"
	ProviderLinear  Provider = "linear"
	ProviderGeneric Provider = "generic"
)

// ParseProvider converts a string identifier into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown oauth provider %q", s)
	}
	return p, nil
}

func (p Provider) String() string {
	return string(p)
}

// Valid reports whether the provider is one of the known flavors.
func (p Provider) Valid() bool {
	switch p {
	case ProviderNotion, ProviderGitHub, ProviderGoogle, ProviderSlack, ProviderLinear, ProviderGeneric:
		return true
	}
	return false
}

// GrantType enumerates the OAuth grant types this core issues requests for.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

func (g GrantType) String() string {
	return string(g)
}
