package mw

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// EnforceHost allows requests only if r.Host matches one of the allowed hosts.
// Patterns are exact hosts or wildcards like "*.example.com"; comparison ignores
// case, and a pattern without a port matches the host on any port.
// If allowedHosts is empty, it acts as a passthrough.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	patterns := make([]string, 0, len(allowedHosts))
	for _, p := range allowedHosts {
		patterns = append(patterns, strings.ToLower(p))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(r.Host)
			for _, pattern := range patterns {
				if matchHost(host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Debug("host rejected", logger.String("host", r.Host), logger.String("path", r.URL.Path))
			w.WriteHeader(http.StatusForbidden)
		})
	}
}

func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if !strings.Contains(pattern, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	return host == pattern
}
