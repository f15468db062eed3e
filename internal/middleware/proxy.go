package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures Echo to trust reverse proxy headers
// (X-Real-IP, X-Forwarded-For) from specific IP ranges.
//
// Tessera is deployed behind a reverse proxy. Without this, c.RealIP() would
// return the proxy's address for every request, and the per-IP rate limits
// and the security event log would all see the same client.
//
// The trustedCIDRs parameter lists the proxy ranges. Typical values:
//   - "127.0.0.1/8"    -- localhost (docker host)
//   - "10.0.0.0/8"     -- Docker bridge and overlay networks
//   - "172.16.0.0/12"  -- Docker default bridge network
//   - "192.168.0.0/16" -- common LAN range
//   - "fd00::/8"       -- IPv6 private range
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	// The IPExtractor decides what c.RealIP() returns. Forwarding headers
	// are read only when the peer itself is a trusted proxy, so a direct
	// client cannot spoof its address.
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor returns an Echo IPExtractor that honours X-Real-IP and
// X-Forwarded-For only on connections from trustedCIDRs.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	// Parse once at startup for fast matching per request.
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, network)
	}

	return func(req *http.Request) string {
		// The direct connection IP (peer address).
		direct := directIP(req.RemoteAddr)

		// Only trust forwarding headers if the peer is a known proxy.
		if !isTrusted(direct, trusted) {
			return direct
		}

		// X-Real-IP first; nginx and most reverse proxies set it.
		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}

		// Then X-Forwarded-For, a comma-separated list where the leftmost
		// entry is the original client.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			client, _, _ := strings.Cut(xff, ",")
			if client = strings.TrimSpace(client); client != "" {
				return client
			}
		}
		return direct
	}
}

// directIP extracts the IP address from a "host:port" RemoteAddr.
func directIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// isTrusted reports whether ipStr falls inside any of the trusted ranges.
func isTrusted(ipStr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
