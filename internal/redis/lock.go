package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("patient request lock not acquired")
)

// Locker guards the check-then-insert window when a patient opens an
// instant request. One lock per patient, TTL-bounded.
type Locker interface {
	WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisPatientLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPatientLocker creates a locker that uses a per patient Redis key
func NewRedisPatientLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPatientLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisPatientLocker) WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:instant:%s", patientID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire patient lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPatientLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release patient lock: %w", err)
	}
	return nil
}
