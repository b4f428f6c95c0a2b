package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "first forwarded hop", header: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "real ip header", header: map[string]string{"X-Real-IP": " 198.51.100.2 "}, want: "198.51.100.2"},
		{name: "remote address port stripped", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 remote address", remote: "[::1]:8080", want: "::1"},
		{name: "remote address without port", remote: "192.0.2.9", want: "192.0.2.9"},
		{name: "nothing known", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var got Client
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-results", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Chrome/120.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, Client{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 Chrome/120.0"}, got)
	assert.Empty(t, GetClientIP(req.Context()), "the original request is untouched")
}
