package middleware

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// native clients and tooling do not send an Origin
var trustedUserAgentPrefixes = []string{"LiftLog/", "curl/", "test-agent"}

var (
	corsAllowHeaders = strings.Join([]string{
		"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization",
		TokenHeader, RequestIDHeader,
	}, ", ")
	corsExposeHeaders = strings.Join([]string{TokenHeader, RequestIDHeader, "Retry-After"}, ", ")
)

// Cors lets through requests from the allowed origins, from trusted user agents
// and every request for the public exercise catalog. Everything else gets a 403.
func Cors(origins []string) func(next http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowedOrigins[o] = true
	}

	allowed := func(r *http.Request) bool {
		if origin := r.Header.Get("Origin"); origin != "" && allowedOrigins[origin] {
			return true
		}
		if strings.HasPrefix(r.URL.Path, "/catalog") {
			return true
		}
		userAgent := r.Header.Get("User-Agent")
		for _, prefix := range trustedUserAgentPrefixes {
			if strings.HasPrefix(userAgent, prefix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !allowed(r) {
				log.WithFields(log.Fields{
					"path":   r.URL.Path,
					"origin": origin,
					"ua":     r.Header.Get("User-Agent"),
				}).Warn("cors: request not allowed")
				w.WriteHeader(http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

			next.ServeHTTP(w, r)
		})
	}
}
