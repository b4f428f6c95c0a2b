package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"innexbot/internal/collector/metrics"
	"innexbot/internal/collector/models"
	"innexbot/internal/collector/service/mocks"
	"innexbot/internal/collector/store"
	dErrors "innexbot/pkg/domain-errors"
	"innexbot/pkg/platform/sentinel"
)

const chromeUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var receivedAt = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func validBody() map[string]any {
	return map[string]any{
		"auditId":          "a-1",
		"timestamp":        "2026-06-01T11:59:00.000Z",
		"extensionVersion": "1.2.0",
		"score":            float64(75),
		"healthStatus":     "good",
		"eventsChecked": []any{
			map[string]any{"eventType": "pageview", "found": true, "weight": float64(15), "category": "navigation"},
			map[string]any{"eventType": "purchase", "found": false, "weight": float64(5)},
			map[string]any{"eventType": "begin_checkout", "found": false, "weight": float64(15), "skipped": true},
		},
		"duration":  "3m 12s",
		"isShopify": true,
		"shopifyInfo": map[string]any{
			"method": "window.Shopify",
			"shop":   "demo.myshopify.com",
		},
	}
}

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockPublisher
	store     *store.InMemoryStore
	metrics   *metrics.Metrics
	service   *Service
	ids       int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ids = 0
	s.service = New(s.store,
		WithPublisher(s.publisher),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return receivedAt }),
	)
	s.service.newID = func() string {
		s.ids++
		return fmt.Sprintf("id-%d", s.ids)
	}
}

func (s *ServiceSuite) submit(body map[string]any) (models.SubmitResponse, error) {
	return s.service.Submit(context.Background(), Submission{Body: body, ExtensionID: "ext-1", UserAgent: chromeUA})
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("stores and publishes a valid submission", func() {
		s.SetupTest()
		var published models.AuditRecord
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, rec models.AuditRecord) error {
				published = rec
				return nil
			})

		resp, err := s.submit(validBody())
		s.Require().NoError(err)
		s.True(resp.Success)
		s.Equal("a-1", resp.AuditID)
		s.Equal(MessageReceived, resp.Message)
		s.False(resp.Duplicate)

		rec, err := s.store.FindByAuditID(context.Background(), "a-1")
		s.Require().NoError(err)
		s.Equal("id-1", rec.ID)
		s.Equal("ext-1", rec.ExtensionID)
		s.Equal(receivedAt, rec.ReceivedAt)
		s.Equal(75, rec.Score)
		s.Equal(3, rec.TotalTests)
		s.Equal(1, rec.SuccessfulTests)
		s.Equal(1, rec.FailedTests)
		s.Equal(1, rec.SkippedTests)
		s.Require().NotNil(rec.DurationSeconds)
		s.Equal(192, *rec.DurationSeconds)
		s.True(rec.IsShopify)
		s.Equal("demo.myshopify.com", rec.ShopifyInfo.Shop)
		s.Equal("Chrome", rec.Browser)
		s.Equal("120.0.0.0", rec.BrowserVersion)
		s.Equal(rec, published)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Received))
	})

	s.Run("generates an audit id when absent", func() {
		s.SetupTest()
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
		body := validBody()
		delete(body, "auditId")

		resp, err := s.submit(body)
		s.Require().NoError(err)
		s.Equal("id-2", resp.AuditID)
	})

	s.Run("duplicate audit id is acknowledged once", func() {
		s.SetupTest()
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		_, err := s.submit(validBody())
		s.Require().NoError(err)
		resp, err := s.submit(validBody())
		s.Require().NoError(err)
		s.True(resp.Success)
		s.True(resp.Duplicate)
		s.Equal(MessageDuplicate, resp.Message)

		list, err := s.service.Recent(context.Background(), 0)
		s.Require().NoError(err)
		s.Equal(1, list.Count)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Duplicates))
	})

	s.Run("publish failure does not fail the request", func() {
		s.SetupTest()
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		resp, err := s.submit(validBody())
		s.Require().NoError(err)
		s.True(resp.Success)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.PublishFailure))
	})

	s.Run("missing extension id", func() {
		s.SetupTest()
		_, err := s.service.Submit(context.Background(), Submission{Body: validBody()})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("forbidden field is named and nothing is stored", func() {
		s.SetupTest()
		body := validBody()
		body["customer"] = map[string]any{"email": "a@b.c"}

		_, err := s.submit(body)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
		var fe *ForbiddenFieldError
		s.Require().ErrorAs(err, &fe)
		s.Equal("customer.email", fe.Field)
		s.Equal(MessageSensitiveData, dErrors.MessageOf(err))

		list, err := s.service.Recent(context.Background(), 0)
		s.Require().NoError(err)
		s.Zero(list.Count)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("forbidden_field")))
	})
}

func TestParseSubmission_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		message string
	}{
		{"missing fields", func(b map[string]any) { delete(b, "score"); delete(b, "healthStatus") },
			"missing required fields: score, healthStatus"},
		{"events not a list", func(b map[string]any) { b["eventsChecked"] = "pageview" },
			"missing required fields: eventsChecked"},
		{"score above range", func(b map[string]any) { b["score"] = float64(101) },
			"score must be an integer between 0 and 100"},
		{"score not a number", func(b map[string]any) { b["score"] = "75" },
			"score must be an integer between 0 and 100"},
		{"score fractional", func(b map[string]any) { b["score"] = 75.5 },
			"score must be an integer between 0 and 100"},
		{"bad timestamp", func(b map[string]any) { b["timestamp"] = "yesterday" },
			"timestamp must be a valid ISO-8601 date string"},
		{"event missing found", func(b map[string]any) {
			b["eventsChecked"] = []any{map[string]any{"eventType": "pageview", "weight": float64(15)}}
		}, "each event must have eventType, found (boolean), and weight (number)"},
		{"negative total", func(b map[string]any) { b["totalTests"] = float64(-1) },
			"totalTests must be a non-negative number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validBody()
			tt.mutate(body)
			_, err := parseSubmission(body, New(nil).policy)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
			assert.Equal(t, tt.message, dErrors.MessageOf(err))
		})
	}
}

func TestParseSubmission_ExplicitCountsWin(t *testing.T) {
	body := validBody()
	body["totalTests"] = float64(6)
	body["skippedTests"] = float64(0)

	rec, err := parseSubmission(body, New(nil).policy)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.TotalTests)
	assert.Equal(t, 0, rec.SkippedTests)
	assert.Equal(t, 1, rec.SuccessfulTests)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"3m 45s", intPtr(225)},
		{"45s", intPtr(45)},
		{"10m0s", intPtr(600)},
		{"soon", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.in))
		})
	}
}

func intPtr(n int) *int { return &n }

func TestService_StoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc := New(st)
	boom := errors.New("connection reset")

	t.Run("save failure is internal", func(t *testing.T) {
		st.EXPECT().Save(gomock.Any(), gomock.Any()).Return(boom)
		_, err := svc.Submit(context.Background(), Submission{Body: validBody(), ExtensionID: "ext-1"})
		assert.True(t, dErrors.Is(err, dErrors.CodeInternal))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("recent clamps the limit", func(t *testing.T) {
		st.EXPECT().Recent(gomock.Any(), MaxListLimit).Return(nil, nil)
		list, err := svc.Recent(context.Background(), 5000)
		require.NoError(t, err)
		assert.NotNil(t, list.Audits)
		assert.Zero(t, list.Count)
	})

	t.Run("audit lookup maps not found", func(t *testing.T) {
		st.EXPECT().FindByAuditID(gomock.Any(), "missing").Return(models.AuditRecord{}, sentinel.ErrNotFound)
		_, err := svc.Audit(context.Background(), "missing")
		assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
	})

	t.Run("extension config", func(t *testing.T) {
		st.EXPECT().ActiveMetrics(gomock.Any()).Return([]models.TrackingMetric{{EventType: "view_item", Weight: 20}}, nil)
		cfg, err := svc.ExtensionConfig(context.Background())
		require.NoError(t, err)
		assert.True(t, cfg.Success)
		assert.Len(t, cfg.Config, 1)
	})
}
