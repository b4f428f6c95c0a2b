// Package messaging wraps calls across execution contexts (agent to page,
// agent to storage) with a bounded wait and a typed outcome. A call never
// blocks its caller past the timeout, and a missing recipient is an outcome
// rather than an error.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default waits for the calls the agent makes.
const (
	StorageTimeout = 1500 * time.Millisecond
	PageTimeout    = 8 * time.Second
	NetworkTimeout = 10 * time.Second
)

// Outcome classifies how a call ended.
type Outcome int

const (
	Delivered Outcome = iota
	TimedOut
	RecipientAbsent
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TimedOut:
		return "timed_out"
	case RecipientAbsent:
		return "recipient_absent"
	default:
		return "failed"
	}
}

// Errors a transport returns when the other side went away mid-call.
var (
	ErrChannelClosed   = errors.New("message channel closed")
	ErrReceiverMissing = errors.New("receiving end does not exist")
	ErrPortClosed      = errors.New("message port closed")
)

var absentMarkers = []string{
	ErrChannelClosed.Error(),
	ErrReceiverMissing.Error(),
	ErrPortClosed.Error(),
}

// Reply is the result of Call. Value is only meaningful when Outcome is
// Delivered; Err is set for every other outcome.
type Reply[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
}

// OK reports whether the recipient answered.
func (r Reply[T]) OK() bool { return r.Outcome == Delivered }

// Call runs fn with a deadline of timeout and classifies the result. fn keeps
// running in the background if it ignores ctx; its late answer is dropped.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) Reply[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return Reply[T]{Outcome: Classify(res.err), Err: res.err}
		}
		return Reply[T]{Outcome: Delivered, Value: res.v}
	case <-ctx.Done():
		return Reply[T]{Outcome: TimedOut, Err: fmt.Errorf("no reply within %s: %w", timeout, ctx.Err())}
	}
}

// Classify maps a transport error to an outcome. Errors from foreign
// transports are matched on their text since they carry no sentinel.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Delivered
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	case IsRecipientAbsent(err):
		return RecipientAbsent
	default:
		return Failed
	}
}

// IsRecipientAbsent reports whether err means nobody was listening.
func IsRecipientAbsent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrReceiverMissing) || errors.Is(err, ErrPortClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range absentMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
