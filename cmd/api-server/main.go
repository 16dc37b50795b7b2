package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/medimeet/telehealth-scheduling/internal/api"
	"github.com/medimeet/telehealth-scheduling/internal/booking"
	"github.com/medimeet/telehealth-scheduling/internal/config"
	"github.com/medimeet/telehealth-scheduling/internal/db"
	"github.com/medimeet/telehealth-scheduling/internal/instant"
	"github.com/medimeet/telehealth-scheduling/internal/logging"
	redisclient "github.com/medimeet/telehealth-scheduling/internal/redis"
	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s clinic_tz_offset=%dmin", cfg.Env, cfg.HTTPPort, cfg.ClinicTZOffset)

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

	// Connect Redis
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

	logLevel := "info"
	if cfg.Env == "dev" {
		logLevel = "debug"
	}
	logger := logging.New(logLevel)
	zone := schedule.ClinicZone(cfg.ClinicTZOffset)

	bookingRepo := booking.NewPgRepository(pgPool)
	instantRepo := instant.NewPgRepository(pgPool)
	locker := redisclient.NewRedisPatientLocker(rdb, cfg.RequestLockTTL)
	notifier := redisclient.NewRedisMatchNotifier(rdb)

	bookingSvc := booking.NewService(bookingRepo, cfg.JoinWindow, logger)
	instantSvc := instant.NewService(instantRepo, locker, notifier, nil, cfg.InstantAmount, logger)
	scheduleSvc := schedule.NewService(bookingRepo, bookingRepo, zone, cfg.BookingLeadTime, logger)

	handler := api.NewRouter(api.RouterConfig{
		Bookings:   bookingSvc,
		Instant:    instantSvc,
		Schedule:   scheduleSvc,
		ClinicZone: zone,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	case <-rootCtx.Done():
	}

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
