// Package httputil holds small request helpers shared by the server and
// middleware layers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the originating client address for logging and
// rate limiting. Forwarding headers are consulted first so deployments
// behind a proxy attribute requests to the real client, but every
// candidate is parsed before use; a garbage header falls through to the
// socket address.
//
// The returned value is client-controlled when no trusted proxy strips
// the headers. Access decisions must use RemoteIP instead.
func GetClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The first entry is the originating client; later entries are
		// the proxies the request passed through.
		for _, candidate := range strings.Split(fwd, ",") {
			candidate = strings.TrimSpace(candidate)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		if net.ParseIP(real) != nil {
			return real
		}
	}

	return RemoteIP(r)
}

// RemoteIP returns the IP of the connected socket, ignoring forwarding
// headers entirely.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
