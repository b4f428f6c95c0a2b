package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"innexbot/pkg/platform/httputil"
	metadata "innexbot/pkg/platform/middleware/metadata"
)

// Limiter is satisfied by InMemoryWindow and RedisWindow.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  *Metrics
	limit    int
	window   time.Duration
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLimit(limit int, window time.Duration) Option {
	return func(m *Middleware) {
		if limit > 0 {
			m.limit = limit
		}
		if window > 0 {
			m.window = window
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func New(limiter Limiter, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		limit:   DefaultLimit,
		window:  DefaultWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

// PerIP limits requests by client IP. It expects metadata.ClientMetadata
// earlier in the chain and fails open when the limiter errors.
func (m *Middleware) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := metadata.GetClientIP(ctx)
		if ip == "" {
			ip = metadata.ClientIPFromRequest(r)
		}

		if m.metrics != nil {
			m.metrics.Checks.Inc()
		}
		result, err := m.limiter.Allow(ctx, "ip:"+ip, m.limit, m.window)
		if err != nil {
			if m.metrics != nil {
				m.metrics.Errors.Inc()
			}
			m.logger.ErrorContext(ctx, "failed to check IP rate limit", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)

		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.Rejected.Inc()
			}
			writeRateLimitExceeded(w, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    MessageTooManyRequests,
		RetryAfter: result.RetryAfter,
	})
}
