package api

import (
	"net"
	"net/http"
	"strings"
)

// getRealIP resolves the client address used for rate limiting and audit
// logs. Forwarded headers are only honored when trustProxy is set and the
// direct peer sits inside a trusted proxy network; anyone else could spoof
// an arbitrary address through X-Forwarded-For.
func getRealIP(r *http.Request, trustProxy bool, trustedNetworks []string) string {
	directIP := directPeerIP(r)

	if !trustProxy || !isTrustedProxy(directIP, trustedNetworks) {
		return directIP
	}

	if forwarded := forwardedClientIP(r); forwarded != "" {
		return forwarded
	}
	return directIP
}

// directPeerIP strips the port from the connection's remote address.
func directPeerIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr is not always host:port.
		return r.RemoteAddr
	}
	return ip
}

// forwardedClientIP returns the first valid address found in the usual
// forwarding headers. An X-Forwarded-For value lists the whole proxy chain
// and the first entry is the originating client.
func forwardedClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if ip := r.Header.Get(header); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}

// isTrustedProxy reports whether ip falls inside any configured proxy
// network. Entries may be CIDR blocks or single addresses; malformed
// entries never match.
func isTrustedProxy(ip string, trustedNetworks []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, network := range trustedNetworks {
		if !strings.Contains(network, "/") {
			if network == ip {
				return true
			}
			continue
		}
		if _, ipNet, err := net.ParseCIDR(network); err == nil && ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
