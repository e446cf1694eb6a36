package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/testpulse/testpulse/config"
)

const defaultKeyHeader = "x-api-key"

// apiKeyMiddleware returns a middleware enforcing API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or the resolved key is empty, all requests pass.
//   - Otherwise the configured header is compared to the expected key in
//     constant time; a missing or wrong key gets HTTP 401.
func apiKeyMiddleware(cfg config.ServerAuthConfig) func(http.Handler) http.Handler {
	header := cfg.Header
	if header == "" {
		header = defaultKeyHeader
	}
	key := cfg.Key()

	return func(next http.Handler) http.Handler {
		if cfg.Mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
