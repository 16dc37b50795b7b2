// stale-sweeper is the out-of-band cleanup for instant requests that were
// abandoned while waiting. The matching engine itself never expires
// anything; this runs beside it on an interval.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/medimeet/telehealth-scheduling/internal/config"
	"github.com/medimeet/telehealth-scheduling/internal/db"
	"github.com/medimeet/telehealth-scheduling/internal/instant"
	"github.com/medimeet/telehealth-scheduling/internal/logging"
	redisclient "github.com/medimeet/telehealth-scheduling/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("stale-sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running stale sweeper in env=%s interval=%s max_age=%s", cfg.Env, cfg.SweepInterval, cfg.SweepAge)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns, cfg.ConnectTimeout)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize, cfg.ConnectTimeout)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := instant.NewPgRepository(pgPool)
	locker := redisclient.NewRedisPatientLocker(rdb, cfg.RequestLockTTL)
	notifier := redisclient.NewRedisMatchNotifier(rdb)
	svc := instant.NewService(repo, locker, notifier, nil, cfg.InstantAmount, logging.Default())

	// Run once at startup
	runOnce(rootCtx, svc, cfg.SweepAge)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping stale sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.SweepAge)
		}
	}
}

func runOnce(ctx context.Context, svc *instant.Service, maxAge time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	swept, err := svc.SweepStaleWaiting(runCtx, maxAge)
	if err != nil {
		log.Printf("sweep run error: %v", err)
		return
	}
	log.Printf("sweep run complete: swept=%d in %s", swept, time.Since(start))
}
