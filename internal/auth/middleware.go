// Package auth wires API-key validation and per-key rate limiting into the
// HTTP middleware chain.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pzhine/js-worker-search/internal/auth/apikey"
	"github.com/pzhine/js-worker-search/internal/auth/ratelimit"
)

type contextKey string

const keyInfoContextKey contextKey = "api_key_info"

const defaultKeyRateLimit = 100

// Middleware returns a middleware that authenticates requests against the
// key store and enforces each key's rate limit. Only /api/ paths are
// protected; health and metrics endpoints stay open.
func Middleware(store *apikey.Store, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			rawKey := extractKey(r)
			if rawKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := store.Validate(r.Context(), rawKey)
			switch {
			case errors.Is(err, apikey.ErrInvalidKey):
				writeAuthError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeAuthError(w, http.StatusUnauthorized, "expired api key")
				return
			case err != nil:
				logger.Error("api key validation failed", "error", err)
				writeAuthError(w, http.StatusInternalServerError, "authentication error")
				return
			}

			limit := info.RateLimit
			if limit <= 0 {
				limit = defaultKeyRateLimit
			}
			if !limiter.Allow(info.ID, limit) {
				writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			ctx := context.WithValue(r.Context(), keyInfoContextKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyInfoFromContext returns the validated key info, if any.
func KeyInfoFromContext(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoContextKey).(*apikey.KeyInfo)
	return info
}

// extractKey reads the API key in priority order: Authorization bearer
// token, X-API-Key header, api_key query parameter.
func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
