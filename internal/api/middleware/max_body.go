package middleware

import (
	"net/http"

	"github.com/palimpsest-ai/palimpsest/internal/api"
)

// MaxBodyBytes rejects request bodies over the limit. Declared lengths are
// checked up front; chunked bodies are capped while being read.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
