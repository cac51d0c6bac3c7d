package mcpauth

import (
	"fmt"
	"net"
	"net/url"

	"github.com/rs/zerolog/log"

	mcperrors "github.com/connectkit/mcpauth/errors"
	"github.com/connectkit/mcpauth/internal/metrics"
)

// deniedPorts are ports conventionally used by internal services. A
// provider endpoint pointing at one of these is itself a signal of attack,
// so they are rejected even on public hosts.
var deniedPorts = map[string]string{
	"22":    "ssh",
	"25":    "smtp",
	"2375":  "docker",
	"3306":  "mysql",
	"5432":  "postgres",
	"5984":  "couchdb",
	"6379":  "redis",
	"9200":  "elasticsearch",
	"11211": "memcached",
	"27017": "mongodb",
}

// lookupIP is swapped out in tests to avoid real DNS.
var lookupIP = net.LookupIP

// ValidateURLForSSRF validates an externally supplied URL before any
// network request is issued to it. Every provider endpoint (authorization,
// token, discovery) must pass through this guard; there is no code path
// that performs an OAuth HTTP request without it.
//
// allowPrivate disables the private-address checks. It exists for tests
// against local endpoints and is never reachable from production config.
func ValidateURLForSSRF(raw string, allowPrivate bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, mcperrors.NewInvalidURL(fmt.Sprintf("unparseable url %q", raw))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, mcperrors.NewInvalidURL(fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, mcperrors.NewInvalidURL("url has no host")
	}

	// Embedded credentials are a credential-leak and log-injection vector.
	if u.User != nil {
		return nil, blocked("embedded_credentials", raw)
	}

	if port := u.Port(); port != "" {
		if svc, denied := deniedPorts[port]; denied {
			return nil, blocked("denied_port_"+svc, raw)
		}
	}

	if !allowPrivate {
		host := u.Hostname()
		if ip := net.ParseIP(host); ip != nil {
			if isDisallowedIP(ip) {
				return nil, blocked("private_address", raw)
			}
		} else {
			ips, err := lookupIP(host)
			if err != nil {
				return nil, mcperrors.NewInvalidURL(fmt.Sprintf("host %q does not resolve", host))
			}
			for _, ip := range ips {
				if isDisallowedIP(ip) {
					return nil, blocked("private_address", raw)
				}
			}
		}
	}

	return u, nil
}

// isDisallowedIP rejects loopback, RFC1918 private ranges, link-local
// (including the cloud metadata range 169.254.0.0/16), unspecified, and
// the IPv6 equivalents (::1, fe80::/10, fc00::/7).
func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

func blocked(reason, raw string) error {
	metrics.SSRFBlockedTotal.WithLabelValues(reason).Inc()
	metrics.AuditEventsTotal.WithLabelValues("ssrf_blocked", metrics.SeverityWarning).Inc()
	log.Warn().Str("reason", reason).Str("url", raw).Msg("SSRF guard rejected provider endpoint")
	return mcperrors.NewSSRFBlocked(fmt.Sprintf("url %q rejected: %s", raw, reason))
}
