package delivery

//go:generate mockgen -source=pipeline.go -destination=mocks/mocks.go -package=mocks Sender,State

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"innexbot/internal/audit"
	"innexbot/internal/delivery/mocks"
	"innexbot/internal/storage"
	"innexbot/pkg/platform/circuit"
	"innexbot/pkg/platform/sanitize"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	sender   *mocks.MockSender
	state    *mocks.MockState
	store    *storage.MemoryStore
	queue    *Queue
	metrics  *Metrics
	mu       sync.Mutex
	sleeps   []time.Duration
	pipeline *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sender = mocks.NewMockSender(s.ctrl)
	s.state = mocks.NewMockState(s.ctrl)
	s.store = storage.NewMemoryStore()
	s.queue = NewQueue(s.store, WithQueueClock(func() time.Time { return testNow }))
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.sleeps = nil
	s.pipeline = s.newPipeline()
}

func (s *PipelineSuite) newPipeline(opts ...Option) *Pipeline {
	base := []Option{
		WithState(s.state),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return testNow }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sleeps = append(s.sleeps, d)
			return nil
		}),
	}
	return New(s.sender, s.queue, append(base, opts...)...)
}

func testDocument(id string) audit.Document {
	return audit.NewDocument(id, []audit.EventCheck{
		{EventType: "pageview", Found: true, Weight: 15, Category: "navigation"},
		{EventType: "purchase", Found: false, Weight: 5, Category: "conversion"},
	}, audit.Meta{CompletedAt: testNow})
}

func unavailable() error { return &SendError{Status: http.StatusServiceUnavailable} }

func networkDown() error {
	return &SendError{Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
}

func (s *PipelineSuite) expectSharing(v storage.DataSharing) {
	s.state.EXPECT().DataSharing(gomock.Any()).Return(v, nil)
}

func (s *PipelineSuite) TestDeliver() {
	ctx := context.Background()

	s.Run("succeeds after two 503 responses", func() {
		s.SetupTest()
		doc := testDocument("audit-retry")
		s.expectSharing(storage.SharingEnabled)
		gomock.InOrder(
			s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{}, unavailable()),
			s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{}, unavailable()),
			s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{Success: true, AuditID: doc.AuditID, Message: "ok"}, nil),
		)
		s.state.EXPECT().MarkAuditSent(gomock.Any(), testNow).Return(nil)

		receipt, err := s.pipeline.Deliver(ctx, doc)

		s.Require().NoError(err)
		s.True(receipt.Success)
		s.Equal(doc.AuditID, receipt.AuditID)
		s.Equal([]time.Duration{time.Second, 2 * time.Second}, s.sleeps)
		n, err := s.queue.Len(ctx)
		s.Require().NoError(err)
		s.Zero(n)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Delivered))
		s.Equal(float64(3), testutil.ToFloat64(s.metrics.Attempts))
	})

	s.Run("queues after three network failures without returning an error", func() {
		s.SetupTest()
		doc := testDocument("audit-exhausted")
		s.expectSharing(storage.SharingUnset)
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{}, networkDown()).Times(3)

		receipt, err := s.pipeline.Deliver(ctx, doc)

		s.Require().NoError(err)
		s.False(receipt.Success)
		s.True(receipt.Queued)
		entries, err := s.queue.Entries(ctx)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(0, entries[0].Attempts)
		s.Equal(doc.AuditID, entries[0].Payload.AuditID)
		s.Equal(testNow, entries[0].EnqueuedAt)
	})

	s.Run("4xx is surfaced once and not queued", func() {
		s.SetupTest()
		s.expectSharing(storage.SharingEnabled)
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).
			Return(audit.Receipt{}, &SendError{Status: http.StatusBadRequest, Message: "Invalid score"}).Times(1)

		receipt, err := s.pipeline.Deliver(ctx, testDocument("audit-bad"))

		s.Require().Error(err)
		s.False(IsRetryable(err))
		s.False(receipt.Queued)
		s.Contains(receipt.Error, "Invalid score")
		n, _ := s.queue.Len(ctx)
		s.Zero(n)
		s.Empty(s.sleeps)
	})

	s.Run("data sharing disabled skips transmission", func() {
		s.SetupTest()
		s.expectSharing(storage.SharingDisabled)

		receipt, err := s.pipeline.Deliver(ctx, testDocument("audit-private"))

		s.Require().NoError(err)
		s.True(receipt.Success)
		s.Equal(MessageSharingDisabled, receipt.Message)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Skipped))
	})

	s.Run("payload is stripped by the transmission policy", func() {
		s.SetupTest()
		p := s.newPipeline(WithPolicy(sanitize.NewPolicy([]string{"health"}, nil)))
		s.expectSharing(storage.SharingEnabled)
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, payload map[string]any) (audit.Receipt, error) {
				s.NotContains(payload, "healthStatus")
				s.Equal("audit-stripped", payload["auditId"])
				return audit.Receipt{Success: true}, nil
			})
		s.state.EXPECT().MarkAuditSent(gomock.Any(), gomock.Any()).Return(nil)

		receipt, err := p.Deliver(ctx, testDocument("audit-stripped"))
		s.Require().NoError(err)
		s.Equal("audit-stripped", receipt.AuditID, "receipt falls back to the document id")
	})

	s.Run("open circuit stops direct attempts and queues", func() {
		s.SetupTest()
		p := s.newPipeline(WithBreaker(circuit.New("collector", circuit.WithFailureThreshold(1))))
		s.expectSharing(storage.SharingEnabled)
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{}, unavailable()).Times(1)

		receipt, err := p.Deliver(ctx, testDocument("audit-open"))

		s.Require().NoError(err)
		s.True(receipt.Queued)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.BreakerState))
	})

	s.Run("lastAuditSent failure does not fail delivery", func() {
		s.SetupTest()
		s.expectSharing(storage.SharingEnabled)
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(audit.Receipt{Success: true}, nil)
		s.state.EXPECT().MarkAuditSent(gomock.Any(), gomock.Any()).Return(errors.New("quota exceeded"))

		receipt, err := s.pipeline.Deliver(ctx, testDocument("audit-mark"))
		s.Require().NoError(err)
		s.True(receipt.Success)
	})
}

func (s *PipelineSuite) TestFlushQueue() {
	ctx := context.Background()

	s.Run("applies per-entry outcomes", func() {
		s.SetupTest()
		seed := []Entry{
			{ID: "ok", Payload: testDocument("a-ok"), EnqueuedAt: testNow},
			{ID: "last-chance", Payload: testDocument("a-last"), EnqueuedAt: testNow, Attempts: 4},
			{ID: "fresh", Payload: testDocument("a-fresh"), EnqueuedAt: testNow},
			{ID: "rejected", Payload: testDocument("a-rejected"), EnqueuedAt: testNow, Attempts: 2},
		}
		s.Require().NoError(s.store.Set(ctx, storage.KeyRetryQueue, seed))

		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, payload map[string]any) (audit.Receipt, error) {
				switch payload["auditId"] {
				case "a-ok":
					return audit.Receipt{Success: true}, nil
				case "a-rejected":
					return audit.Receipt{}, &SendError{Status: http.StatusUnauthorized}
				default:
					return audit.Receipt{}, networkDown()
				}
			}).Times(4)
		s.state.EXPECT().MarkAuditSent(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		report, err := s.pipeline.FlushQueue(ctx)

		s.Require().NoError(err)
		s.Equal(FlushReport{Attempted: 4, Delivered: 1, Rejected: 1, Dropped: 1, Remaining: 1}, report)
		entries, err := s.queue.Entries(ctx)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("fresh", entries[0].ID)
		s.Equal(1, entries[0].Attempts)
		s.Empty(s.sleeps, "flush makes one attempt per entry")
	})

	s.Run("keeps entries queued while the flush runs", func() {
		s.SetupTest()
		_, _, err := s.queue.Push(ctx, testDocument("a-old"))
		s.Require().NoError(err)

		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ map[string]any) (audit.Receipt, error) {
				_, _, err := s.queue.Push(ctx, testDocument("a-new"))
				s.Require().NoError(err)
				return audit.Receipt{Success: true}, nil
			})
		s.state.EXPECT().MarkAuditSent(gomock.Any(), gomock.Any()).Return(nil)

		report, err := s.pipeline.FlushQueue(ctx)

		s.Require().NoError(err)
		s.Equal(1, report.Delivered)
		entries, _ := s.queue.Entries(ctx)
		s.Require().Len(entries, 1)
		s.Equal("a-new", entries[0].Payload.AuditID)
	})

	s.Run("open circuit postpones without spending attempts", func() {
		s.SetupTest()
		breaker := circuit.New("collector", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
		breaker.RecordFailure()
		p := s.newPipeline(WithBreaker(breaker))
		_, _, err := s.queue.Push(ctx, testDocument("a-wait"))
		s.Require().NoError(err)

		report, err := p.FlushQueue(ctx)

		s.Require().NoError(err)
		s.Equal(0, report.Attempted)
		entries, _ := s.queue.Entries(ctx)
		s.Require().Len(entries, 1)
		s.Equal(0, entries[0].Attempts)
	})

	s.Run("empty queue is a no-op", func() {
		s.SetupTest()
		report, err := s.pipeline.FlushQueue(ctx)
		s.Require().NoError(err)
		s.Equal(FlushReport{}, report)
	})
}

func (s *PipelineSuite) TestRun() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := s.newPipeline(WithFlushInterval(5 * time.Millisecond))
	_, _, err := s.queue.Push(ctx, testDocument("a-tick"))
	s.Require().NoError(err)

	flushed := make(chan struct{})
	s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, map[string]any) (audit.Receipt, error) {
			close(flushed)
			return audit.Receipt{Success: true}, nil
		})
	s.state.EXPECT().MarkAuditSent(gomock.Any(), gomock.Any()).Return(nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		s.FailNow("queue was not flushed")
	}
	cancel()
	s.NoError(<-done)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &SendError{Status: 500}, true},
		{"502", &SendError{Status: 502}, true},
		{"503", &SendError{Status: 503}, true},
		{"504", &SendError{Status: 504}, true},
		{"501", &SendError{Status: 501}, false},
		{"400", &SendError{Status: 400}, false},
		{"401", &SendError{Status: 401}, false},
		{"429", &SendError{Status: 429}, false},
		{"transport", networkDown(), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("json: cannot unmarshal"), false},
		{"circuit open", ErrCollectorUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSendError(t *testing.T) {
	assert.Equal(t, "HTTP 503", (&SendError{Status: 503}).Error())
	assert.Equal(t, "HTTP 400: Invalid score", (&SendError{Status: 400, Message: "Invalid score"}).Error())
	assert.Contains(t, networkDown().Error(), "connection refused")
}

func TestQueue_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemoryStore(), WithQueueCapacity(3))

	var evictedTotal int
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, evicted, err := q.Push(ctx, testDocument(id))
		assert.NoError(t, err)
		evictedTotal += evicted
	}

	entries, err := q.Entries(ctx)
	assert.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Payload.AuditID
	}
	assert.Equal(t, []string{"c", "d", "e"}, ids)
	assert.Equal(t, 2, evictedTotal)

	assert.NoError(t, q.Clear(ctx))
	n, _ := q.Len(ctx)
	assert.Zero(t, n)
}
