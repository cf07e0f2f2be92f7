package server

import (
	"net/http"

	"github.com/menushield/menushield/internal/logging"
)

// RequestID tags every request with a correlation id. An inbound X-Request-ID
// header is honored so ids survive a proxy hop; otherwise one is generated.
// The id rides on the request context and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
