package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "innexbot/pkg/platform/middleware/metadata"
	tu "innexbot/pkg/testutil"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis: connection refused")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func request(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-results", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	metadata.ClientMetadata(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_PerIP(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	mw := New(NewInMemoryWindow(), WithLimit(2, time.Minute), WithMetrics(metrics))
	h := mw.PerIP(okHandler())

	for range 2 {
		rec := request(h, "203.0.113.7")
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := request(h, "203.0.113.7")
	tu.AssertStatus(t, rec, http.StatusTooManyRequests)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := tu.UnmarshalResponse[ExceededResponse](t, rec)
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Equal(t, MessageTooManyRequests, body.Message)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Rejected))

	rec = request(h, "198.51.100.1")
	assert.Equal(t, http.StatusNoContent, rec.Code, "other clients keep their own budget")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	h := New(failingLimiter{}, WithMetrics(metrics)).PerIP(okHandler())

	rec := request(h, "203.0.113.7")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Errors))
}

func TestMiddleware_Disabled(t *testing.T) {
	h := New(NewInMemoryWindow(), WithLimit(1, time.Minute), WithDisabled(true)).PerIP(okHandler())
	for range 3 {
		assert.Equal(t, http.StatusNoContent, request(h, "203.0.113.7").Code)
	}
}

func TestMiddleware_UsesContextClientIP(t *testing.T) {
	h := New(NewInMemoryWindow(), WithLimit(1, time.Minute)).PerIP(okHandler())

	cases := []struct {
		forwardedFor string
		want         int
	}{
		{"198.51.100.1", http.StatusNoContent},
		{"198.51.100.2", http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-results", nil)
		req.Header.Set("X-Forwarded-For", tc.forwardedFor)
		req = tu.WithClientMetadata(req, "203.0.113.9", "agent/1.0")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "limited by the context IP, not the header")
	}
}
