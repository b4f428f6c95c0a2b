package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const (
	HeaderAPIKey      = "X-API-Key"
	HeaderExtensionID = "X-Extension-ID"
)

type contextKeyExtensionID struct{}

// GetExtensionID returns the id set by RequireExtensionID.
func GetExtensionID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyExtensionID{}).(string)
	return id
}

// WithExtensionID injects an extension id, for handler tests that skip the
// middleware chain.
func WithExtensionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyExtensionID{}, id)
}

// KeyExtractor pulls the presented API key out of a request.
type KeyExtractor func(r *http.Request) string

// FromHeader reads the key from X-API-Key.
func FromHeader(r *http.Request) string {
	return r.Header.Get(HeaderAPIKey)
}

// FromQuery reads the key from the apiKey query parameter.
func FromQuery(r *http.Request) string {
	return r.URL.Query().Get("apiKey")
}

// RequireAPIKey rejects requests whose key does not match expected. An empty
// expected key is a deployment error and answers 500 for every request.
func RequireAPIKey(expected string, extract KeyExtractor, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if expected == "" {
				logger.ErrorContext(ctx, "api key not configured", "request_id", GetRequestID(ctx))
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Server configuration error")
				return
			}

			key := extract(r)
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				logger.WarnContext(ctx, "api key mismatch",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid API Key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireExtensionID rejects requests without an X-Extension-ID header and
// stores the id in the context.
func RequireExtensionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderExtensionID))
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "Missing X-Extension-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithExtensionID(r.Context(), id)))
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}{code, desc})
}
