// Package handler exposes the collector service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"innexbot/internal/audit"
	"innexbot/internal/collector/models"
	"innexbot/internal/collector/service"
	"innexbot/internal/platform/metrics"
	"innexbot/internal/platform/middleware"
	"innexbot/internal/ratelimit"
	dErrors "innexbot/pkg/domain-errors"
	"innexbot/pkg/platform/httputil"
	metadata "innexbot/pkg/platform/middleware/metadata"
)

// MaxBodyBytes bounds an audit submission body.
const MaxBodyBytes = 1 << 20

// Service defines the collector operations served over HTTP.
type Service interface {
	Submit(ctx context.Context, sub service.Submission) (models.SubmitResponse, error)
	Stats(ctx context.Context) (models.Stats, error)
	Recent(ctx context.Context, limit int) (models.AuditList, error)
	Audit(ctx context.Context, auditID string) (models.AuditRecord, error)
	ExtensionConfig(ctx context.Context) (models.ExtensionConfig, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	apiKey         string
	allowedOrigins []string
	limiter        *ratelimit.Middleware
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	started        time.Time
	now            func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRateLimiter guards the submission route.
func WithRateLimiter(m *ratelimit.Middleware) Option {
	return func(h *Handler) {
		h.limiter = m
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.allowedOrigins = origins
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a collector Handler. apiKey guards submission and read routes;
// an empty key makes those routes answer 500.
func New(svc Service, apiKey string, opts ...Option) *Handler {
	h := &Handler{
		service:  svc,
		apiKey:   apiKey,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.limiter == nil {
		h.limiter = ratelimit.New(ratelimit.NewInMemoryWindow(), ratelimit.WithLogger(h.logger))
	}
	h.started = h.now()
	return h
}

// Register mounts the collector routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Tracing)
	r.Use(chimw.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Latency(h.metrics))
	r.Use(middleware.CORS(h.allowedOrigins))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.With(
			h.limiter.PerIP,
			middleware.RequireAPIKey(h.apiKey, middleware.FromHeader, h.logger),
			middleware.RequireExtensionID,
		).Post("/audit-results", h.handleSubmit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(h.apiKey, middleware.FromHeader, h.logger))
			r.Get("/stats", h.handleStats)
			r.Get("/audits", h.handleListAudits)
			r.Get("/audits/{auditID}", h.handleGetAudit)
		})
	})

	r.With(
		middleware.ContentTypeJSON,
		middleware.RequireAPIKey(h.apiKey, middleware.FromQuery, h.logger),
	).Get("/api/extension-config", h.handleExtensionConfig)

	r.NotFound(h.handleNotFound)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Version:   audit.ExtensionVersion,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil || body == nil {
		h.logger.WarnContext(ctx, "invalid audit submission body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	resp, err := h.service.Submit(ctx, service.Submission{
		Body:        body,
		ExtensionID: middleware.GetExtensionID(ctx),
		UserAgent:   metadata.GetUserAgent(ctx),
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to store audit submission",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err, "failed to load stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.writeServiceError(r.Context(), w, err, "failed to list audits")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Audit(r.Context(), chi.URLParam(r, "auditID"))
	if err != nil {
		h.writeServiceError(r.Context(), w, err, "failed to load audit")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleExtensionConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.ExtensionConfig(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err, "failed to load extension config")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route "+r.Method+" "+r.URL.Path+" not found"))
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
