package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminAccess restricts a route group to clients inside allowlist. An empty
// allowlist admits loopback clients only.
//
// Forwarding headers are honoured only when the immediate peer is inside
// trustedProxies; otherwise the peer address is the client.
func AdminAccess(allowlist, trustedProxies []string) echo.MiddlewareFunc {
	allowed := parseNets(allowlist)
	trusted := parseNets(trustedProxies)
	loopbackOnly := len(allowed) == 0

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := net.ParseIP(clientIP(c.Request(), trusted))
			if ip == nil {
				return NewForbiddenError("Invalid client address")
			}
			if loopbackOnly {
				if !ip.IsLoopback() {
					return NewForbiddenError("Access denied: loopback only")
				}
				return next(c)
			}
			if !containsIP(allowed, ip) {
				return NewForbiddenError("Access denied: address not in allowlist")
			}
			return next(c)
		}
	}
}

// parseNets skips malformed entries; config validation rejects them at startup.
func parseNets(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func clientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := peerIP(r.RemoteAddr)
	if len(trusted) == 0 {
		return peer
	}
	if ip := net.ParseIP(peer); ip == nil || !containsIP(trusted, ip) {
		return peer
	}

	if xff := r.Header.Get(echo.HeaderXForwardedFor); xff != "" {
		if ip := forwardedClient(xff, trusted); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get(echo.HeaderXRealIP); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// forwardedClient walks X-Forwarded-For right to left and returns the first hop
// that is not a trusted proxy. If every hop is trusted the leftmost one wins.
func forwardedClient(xff string, trusted []*net.IPNet) string {
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			continue
		}
		if !containsIP(trusted, ip) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

func containsIP(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
