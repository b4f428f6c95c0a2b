package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"innexbot/internal/collector/handler/mocks"
	"innexbot/internal/collector/models"
	"innexbot/internal/collector/service"
	"innexbot/internal/collector/store"
	"innexbot/internal/ratelimit"
	dErrors "innexbot/pkg/domain-errors"
	tu "innexbot/pkg/testutil"
)

const (
	testAPIKey      = "test-key"
	testExtensionID = "innexbot-v1"
)

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func submission() map[string]any {
	return map[string]any{
		"auditId":          "a-1",
		"timestamp":        "2026-06-01T11:59:00Z",
		"extensionVersion": "1.2.0",
		"score":            80,
		"healthStatus":     "excellent",
		"eventsChecked": []map[string]any{
			{"eventType": "pageview", "found": true, "weight": 15},
		},
	}
}

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.now = testStart
	s.router = s.newRouter(testAPIKey)
}

func (s *HandlerSuite) newRouter(apiKey string, opts ...Option) chi.Router {
	base := []Option{
		WithClock(func() time.Time { return s.now }),
		WithGatherer(prometheus.NewRegistry()),
	}
	r := chi.NewRouter()
	New(s.service, apiKey, append(base, opts...)...).Register(r)
	return r
}

func (s *HandlerSuite) submit(body any) *http.Request {
	return tu.NewCollectorRequest(s.T(), http.MethodPost, "/api/v1/audit-results", body, testAPIKey, testExtensionID)
}

func (s *HandlerSuite) TestHealth() {
	s.now = testStart.Add(90 * time.Second)
	rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/health"))

	tu.AssertStatusOK(s.T(), rec)
	resp := tu.UnmarshalResponse[models.HealthResponse](s.T(), rec)
	s.Equal("healthy", resp.Status)
	s.Equal(float64(90), resp.Uptime)
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("created", func() {
		s.SetupTest()
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, sub service.Submission) (models.SubmitResponse, error) {
				s.Equal(testExtensionID, sub.ExtensionID)
				s.Equal("pageview", sub.Body["eventsChecked"].([]any)[0].(map[string]any)["eventType"])
				return models.SubmitResponse{Success: true, AuditID: "a-1", Message: service.MessageReceived}, nil
			})

		rec := tu.DoRequest(s.router, s.submit(submission()))
		tu.AssertStatus(s.T(), rec, http.StatusCreated)
		resp := tu.UnmarshalResponse[models.SubmitResponse](s.T(), rec)
		s.True(resp.Success)
		s.Equal("a-1", resp.AuditID)
	})

	s.Run("duplicate answers 200", func() {
		s.SetupTest()
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(
			models.SubmitResponse{Success: true, AuditID: "a-1", Message: service.MessageDuplicate, Duplicate: true}, nil)

		rec := tu.DoRequest(s.router, s.submit(submission()))
		tu.AssertStatusOK(s.T(), rec)
		tu.AssertJSONContains(s.T(), rec, "message", service.MessageDuplicate)
	})

	s.Run("forbidden field names the field", func() {
		s.SetupTest()
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(models.SubmitResponse{},
			dErrors.Wrap(&service.ForbiddenFieldError{Field: "email"}, dErrors.CodeValidation, service.MessageSensitiveData))

		rec := tu.DoRequest(s.router, s.submit(submission()))
		tu.AssertStatus(s.T(), rec, http.StatusBadRequest)
		body := tu.UnmarshalErrorResponse(s.T(), rec)
		s.Equal("validation_error", body["error"])
		s.Equal("email", body["field"])
		s.Equal(service.MessageSensitiveData, body["error_description"])
	})

	s.Run("malformed body", func() {
		s.SetupTest()
		req := tu.NewRequestWithBody(s.T(), http.MethodPost, "/api/v1/audit-results", "{not json")
		req.Header.Set("X-API-Key", testAPIKey)
		req.Header.Set("X-Extension-ID", testExtensionID)

		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("wrong api key", func() {
		s.SetupTest()
		req := tu.NewCollectorRequest(s.T(), http.MethodPost, "/api/v1/audit-results", submission(), "nope", testExtensionID)
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("missing extension id", func() {
		s.SetupTest()
		req := tu.NewCollectorRequest(s.T(), http.MethodPost, "/api/v1/audit-results", submission(), testAPIKey, "")
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("unconfigured api key", func() {
		s.SetupTest()
		router := s.newRouter("")
		rec := tu.DoRequest(router, s.submit(submission()))
		tu.AssertStatusAndError(s.T(), rec, http.StatusInternalServerError, "internal_error")
	})

	s.Run("rate limited per client", func() {
		s.SetupTest()
		limiter := ratelimit.New(ratelimit.NewInMemoryWindow(), ratelimit.WithLimit(1, time.Minute))
		router := s.newRouter(testAPIKey, WithRateLimiter(limiter))
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(models.SubmitResponse{Success: true, AuditID: "a-1"}, nil)

		first := s.submit(submission())
		first.Header.Set("X-Forwarded-For", "203.0.113.9")
		tu.AssertStatus(s.T(), tu.DoRequest(router, first), http.StatusCreated)

		second := s.submit(submission())
		second.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := tu.DoRequest(router, second)
		tu.AssertStatus(s.T(), rec, http.StatusTooManyRequests)
		tu.AssertJSONContains(s.T(), rec, "message", ratelimit.MessageTooManyRequests)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("stats", func() {
		s.SetupTest()
		s.service.EXPECT().Stats(gomock.Any()).Return(models.Stats{TotalAudits: 3, AverageScore: 58}, nil)

		req := tu.NewRequest(s.T(), http.MethodGet, "/api/v1/stats")
		req.Header.Set("X-API-Key", testAPIKey)
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusOK(s.T(), rec)
		resp := tu.UnmarshalResponse[models.Stats](s.T(), rec)
		s.Equal(3, resp.TotalAudits)
	})

	s.Run("stats require the api key", func() {
		s.SetupTest()
		rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/api/v1/stats"))
		tu.AssertStatus(s.T(), rec, http.StatusUnauthorized)
	})

	s.Run("audits honours limit", func() {
		s.SetupTest()
		s.service.EXPECT().Recent(gomock.Any(), 5).Return(models.AuditList{Count: 0, Audits: []models.AuditRecord{}}, nil)

		req := tu.NewRequest(s.T(), http.MethodGet, "/api/v1/audits?limit=5")
		req.Header.Set("X-API-Key", testAPIKey)
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusOK(s.T(), rec)
		tu.AssertJSONContains(s.T(), rec, "count", float64(0))
	})

	s.Run("audits rejects a bad limit", func() {
		s.SetupTest()
		req := tu.NewRequest(s.T(), http.MethodGet, "/api/v1/audits?limit=-2")
		req.Header.Set("X-API-Key", testAPIKey)
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("single audit not found", func() {
		s.SetupTest()
		s.service.EXPECT().Audit(gomock.Any(), "missing").Return(models.AuditRecord{},
			dErrors.New(dErrors.CodeNotFound, "audit not found"))

		req := tu.NewRequest(s.T(), http.MethodGet, "/api/v1/audits/missing")
		req.Header.Set("X-API-Key", testAPIKey)
		rec := tu.DoRequest(s.router, req)
		tu.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})

	s.Run("extension config uses the query key", func() {
		s.SetupTest()
		s.service.EXPECT().ExtensionConfig(gomock.Any()).Return(models.ExtensionConfig{
			Success: true,
			Config:  []models.TrackingMetric{{EventType: "add_to_cart", Weight: 25, Category: "cart", Instruction: "Add a product to the cart"}},
		}, nil)

		rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/api/extension-config?apiKey="+testAPIKey))
		tu.AssertStatusOK(s.T(), rec)
		resp := tu.UnmarshalResponse[models.ExtensionConfig](s.T(), rec)
		s.Require().Len(resp.Config, 1)
		s.Equal("add_to_cart", resp.Config[0].EventType)
	})

	s.Run("extension config rejects a bad key", func() {
		s.SetupTest()
		rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/api/extension-config?apiKey=nope"))
		tu.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("unknown route", func() {
		s.SetupTest()
		rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/api/v2/nothing"))
		tu.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})

	s.Run("metrics endpoint", func() {
		s.SetupTest()
		rec := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/metrics"))
		tu.AssertStatusOK(s.T(), rec)
	})
}

// End to end through the real service and in-memory store.
func TestHandler_SubmitThenStats(t *testing.T) {
	svc := service.New(store.NewInMemoryStore())
	r := chi.NewRouter()
	New(svc, testAPIKey, WithGatherer(prometheus.NewRegistry())).Register(r)

	for i, score := range []int{90, 30} {
		body := submission()
		body["auditId"] = []string{"a-1", "a-2"}[i]
		body["score"] = score
		rec := tu.DoRequest(r, tu.NewCollectorRequest(t, http.MethodPost, "/api/v1/audit-results", body, testAPIKey, testExtensionID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	blocked := submission()
	blocked["auditId"] = "a-3"
	blocked["customer_email"] = "shopper@example.com"
	rec := tu.DoRequest(r, tu.NewCollectorRequest(t, http.MethodPost, "/api/v1/audit-results", blocked, testAPIKey, testExtensionID))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"field":"customer_email"`))

	req := tu.NewRequest(t, http.MethodGet, "/api/v1/stats")
	req.Header.Set("X-API-Key", testAPIKey)
	rec = tu.DoRequest(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := tu.UnmarshalResponse[models.Stats](t, rec)
	assert.Equal(t, 2, stats.TotalAudits)
	assert.Equal(t, 60, stats.AverageScore)
	assert.Equal(t, 50, stats.ScoreDistribution["excellent"].Percentage)
	assert.Equal(t, 50, stats.ScoreDistribution["critical"].Percentage)
}
