package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address for request logs: the first
// X-Forwarded-For hop when a proxy set one, otherwise the bare RemoteAddr
// host. It never validates the value; log consumers treat it as a hint.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
