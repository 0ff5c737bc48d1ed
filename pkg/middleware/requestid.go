package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/pzhine/js-worker-search/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that attaches a request id to the context and
// echoes it in the response. An id supplied by the client is kept, otherwise
// a random one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
