package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		reply := Call(ctx, time.Second, func(context.Context) (string, error) {
			return "pong", nil
		})
		require.True(t, reply.OK())
		assert.Equal(t, "pong", reply.Value)
		assert.NoError(t, reply.Err)
	})

	t.Run("recipient absent", func(t *testing.T) {
		reply := Call(ctx, time.Second, func(context.Context) (int, error) {
			return 0, ErrReceiverMissing
		})
		assert.Equal(t, RecipientAbsent, reply.Outcome)
		assert.False(t, reply.OK())
	})

	t.Run("failed", func(t *testing.T) {
		reply := Call(ctx, time.Second, func(context.Context) (int, error) {
			return 0, errors.New("boom")
		})
		assert.Equal(t, Failed, reply.Outcome)
		assert.EqualError(t, reply.Err, "boom")
	})

	t.Run("timed out when fn ignores ctx", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		reply := Call(ctx, 20*time.Millisecond, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		assert.Equal(t, TimedOut, reply.Outcome)
		assert.ErrorIs(t, reply.Err, context.DeadlineExceeded)
	})

	t.Run("timed out when fn honours ctx", func(t *testing.T) {
		reply := Call(ctx, 10*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.Equal(t, TimedOut, reply.Outcome)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Delivered},
		{"deadline", context.DeadlineExceeded, TimedOut},
		{"wrapped channel closed", errors.Join(errors.New("send"), ErrChannelClosed), RecipientAbsent},
		{"port closed", ErrPortClosed, RecipientAbsent},
		{"foreign text", errors.New("Could not establish connection. Receiving end does not exist."), RecipientAbsent},
		{"foreign channel text", errors.New("The message channel closed before a response was received"), RecipientAbsent},
		{"other", errors.New("permission denied"), Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "recipient_absent", RecipientAbsent.String())
	assert.Equal(t, "failed", Failed.String())
}
