package middleware

import (
	"net"
	"net/http"
	"strings"
)

// NoStore keeps callback pages out of caches and stops the browser from
// leaking the callback URL through the Referer header.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// LoopbackOnly rejects requests whose Host header does not name a loopback
// address. A page served from another origin cannot reach the callback by
// rebinding its own hostname to 127.0.0.1.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsLoopbackHost(r.Host) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsLoopbackHost reports whether host, with or without a port, is localhost
// or a loopback IP.
func IsLoopbackHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}

	hostWithoutPort, _, err := net.SplitHostPort(host)
	if err != nil {
		hostWithoutPort = host // No port present
	}
	hostWithoutPort = strings.TrimSuffix(strings.TrimPrefix(hostWithoutPort, "["), "]")

	if hostWithoutPort == "localhost" {
		return true
	}
	ip := net.ParseIP(hostWithoutPort)
	return ip != nil && ip.IsLoopback()
}
