// Package redisclient owns everything this service does with Redis: the
// shared client, the per-patient create lock and the matched-event
// notifier.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient dials Redis with the configured pool size and fails fast
// when the server is unreachable at startup.
func NewRedisClient(addr, username, password string, poolSize int, pingTimeout time.Duration) (*redis.Client, error) {
	if poolSize < 1 {
		poolSize = 1
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
