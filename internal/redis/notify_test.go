package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchNotifierRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	notifier := NewRedisMatchNotifier(client)
	requestID, doctorID := uuid.New(), uuid.New()

	type result struct {
		doctorID uuid.UUID
		err      error
	}
	done := make(chan result, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		id, err := notifier.WaitForMatch(ctx, requestID)
		done <- result{id, err}
	}()

	// The subscriber may not be live yet; keep publishing until it hears us.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			require.NoError(t, res.err)
			assert.Equal(t, doctorID, res.doctorID)
			return
		case <-ticker.C:
			require.NoError(t, notifier.PublishMatched(ctx, requestID, doctorID))
		case <-ctx.Done():
			t.Fatal("matched event never delivered")
		}
	}
}

func TestMatchNotifierWaitTimesOut(t *testing.T) {
	notifier := NewRedisMatchNotifier(newTestRedis(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := notifier.WaitForMatch(ctx, uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchNotifierIgnoresOtherRequests(t *testing.T) {
	client := newTestRedis(t)
	notifier := NewRedisMatchNotifier(client)
	requestID, otherID, doctorID := uuid.New(), uuid.New(), uuid.New()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = notifier.PublishMatched(context.Background(), otherID, doctorID)
			}
		}
	}()

	// Events for other requests never unblock this wait.
	_, err := notifier.WaitForMatch(ctx, requestID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
