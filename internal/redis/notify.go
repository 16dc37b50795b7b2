package redisclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MatchNotifier fans out "doctor accepted" events so waiting patients can
// long-poll instead of spinning on status reads. Delivery is best effort:
// the status row in Postgres is the source of truth, the channel only
// bounds the latency of noticing it.
type MatchNotifier interface {
	PublishMatched(ctx context.Context, requestID, doctorID uuid.UUID) error
	WaitForMatch(ctx context.Context, requestID uuid.UUID) (doctorID uuid.UUID, err error)
}

type redisMatchNotifier struct {
	client *redis.Client
}

func NewRedisMatchNotifier(client *redis.Client) MatchNotifier {
	return &redisMatchNotifier{client: client}
}

func matchChannel(requestID uuid.UUID) string {
	return fmt.Sprintf("instant:matched:%s", requestID.String())
}

func (n *redisMatchNotifier) PublishMatched(ctx context.Context, requestID, doctorID uuid.UUID) error {
	if err := n.client.Publish(ctx, matchChannel(requestID), doctorID.String()).Err(); err != nil {
		return fmt.Errorf("publish matched event: %w", err)
	}
	return nil
}

// WaitForMatch blocks until a matched event for requestID arrives or ctx is
// done. Callers must re-read the request after subscribing to cover events
// published before the subscription was live.
func (n *redisMatchNotifier) WaitForMatch(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error) {
	sub := n.client.Subscribe(ctx, matchChannel(requestID))
	defer func() {
		_ = sub.Close()
	}()

	// Force the SUBSCRIBE round trip so the caller can safely re-check
	// current state once this returns.
	if _, err := sub.Receive(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("subscribe matched channel: %w", err)
	}

	ch := sub.Channel()
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return uuid.Nil, ctx.Err()
		}
		doctorID, err := uuid.Parse(msg.Payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("malformed matched payload %q: %w", msg.Payload, err)
		}
		return doctorID, nil
	}
}
