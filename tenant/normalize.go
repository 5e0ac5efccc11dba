package tenant

import (
	"net/url"
	"slices"
	"strings"
)

// DefaultReservedHosts are never matched against tenant domains.
var DefaultReservedHosts = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// NormalizeDomain returns the canonical form of a raw host: surrounding whitespace
// trimmed, lowercased, trailing ":<port>" removed. Empty input yields empty output.
// Normalizing an already normalized value returns it unchanged.
func NormalizeDomain(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}

	if i := strings.LastIndexByte(host, ':'); i >= 0 && isPort(host[i+1:]) {
		head := host[:i]
		// Bare IPv6 literals contain colons of their own; only bracketed ones carry a port.
		if !strings.Contains(head, ":") || strings.HasSuffix(head, "]") {
			host = strings.TrimSpace(head)
		}
	}
	return host
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HostFromOrigin extracts and normalizes the host of an Origin header value.
// Opaque origins ("null") and unparsable values yield "".
func HostFromOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return NormalizeDomain(u.Host)
}

// FirstForwardedHost returns the client-facing host from an X-Forwarded-Host value,
// which proxies may append to as a comma-separated list.
func FirstForwardedHost(value string) string {
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return NormalizeDomain(value)
}

// IsReservedHost reports whether host is one of the reserved local hosts.
// A nil list falls back to DefaultReservedHosts.
func IsReservedHost(host string, reserved []string) bool {
	if reserved == nil {
		reserved = DefaultReservedHosts
	}
	return slices.Contains(reserved, NormalizeDomain(host))
}
