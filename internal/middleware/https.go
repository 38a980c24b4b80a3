package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ForceHTTPS wraps h.  If the request is plain HTTP, did not arrive through
// a TLS-terminating proxy, and the host is not a loopback name, the wrapper
// issues a 308 Permanent Redirect to the HTTPS version of the same URL.
// 308 keeps the method and body, so a POST is re-sent as a POST.
func ForceHTTPS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil ||
			strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") ||
			isLoopback(stripPort(r.Host)) {
			h.ServeHTTP(w, r)
			return
		}

		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

// stripPort removes the :port suffix from Host when present.
func stripPort(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
