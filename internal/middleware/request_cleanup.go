package middleware

import (
	"io"
	"net/http"
)

const (
	// plans and editor payloads are a few KB at most
	maxBodyBytes  = 1 << 20
	maxDrainBytes = 256 << 10
)

// DrainAndCloseRequest caps the request body at maxBodyBytes. Once the handler is done,
// the unread rest of the body is drained (up to maxDrainBytes) and closed, so the
// keep-alive connection can be reused.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)

			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxDrainBytes))
			_ = r.Body.Close()
		})
	}
}
