package testutil

import (
	"net/http"
	"testing"

	metadata "innexbot/pkg/platform/middleware/metadata"
)

// WithClientMetadata sets the client IP and User-Agent in the request
// context, as the metadata middleware would.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	ctx := metadata.WithClientMetadata(req.Context(), clientIP, userAgent)
	return req.WithContext(ctx)
}

// NewCollectorRequest creates a JSON request carrying the headers an agent
// sends with an audit submission. Empty values leave the header unset.
func NewCollectorRequest(t *testing.T, method, path string, body any, apiKey, extensionID string) *http.Request {
	t.Helper()
	req := NewJSONRequest(t, method, path, body)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if extensionID != "" {
		req.Header.Set("X-Extension-ID", extensionID)
	}
	return req
}
