package middleware

import (
	"net/http"

	"github.com/angelmondragon/convtrack-backend/api/responses"
)

// DebugErrors lets error responses carry the error chain. Wire it only in dev.
func DebugErrors(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(responses.WithDebug(r.Context())))
		})
	}
}
