// Package clientip resolves the client address used as the admission key.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Resolver extracts the client IP from a request. Proxy-supplied headers
// are only honored when TrustProxyHeaders is set, since any client can
// forge them when the gateway is exposed directly.
type Resolver struct {
	TrustProxyHeaders bool
}

// FromRequest returns the client IP as a string. It falls back to the raw
// RemoteAddr when no better source is available.
func (r Resolver) FromRequest(req *http.Request) string {
	if r.TrustProxyHeaders {
		if ip := firstForwarded(req.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(req.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func firstForwarded(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}
