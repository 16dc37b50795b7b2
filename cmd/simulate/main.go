// simulate load-tests the instant-match engine over HTTP. Patient workers
// enqueue and pay for requests while a pool of doctor workers races to
// accept the oldest pending one; the report counts how many accepts won the
// conditional claim versus lost it, and cross-checks the store for any
// matched request left without a doctor.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimeet/telehealth-scheduling/internal/config"
	"github.com/medimeet/telehealth-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	PatientWorkers int
	DoctorWorkers  int
	PatientLimit   int
	DoctorLimit    int
	PostgresDSN    string
	PgMaxConns     int
	ConnectTimeout time.Duration
}

type actor struct {
	ID        uuid.UUID
	Specialty string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []actor

	mu      sync.RWMutex
	pending []uuid.UUID // request ids created during the run
}

func (dp *DataPool) AddRequest(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pending = append(dp.pending, id)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Create OperationMetrics
	Pay    OperationMetrics
	Accept OperationMetrics
	Status OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s patient_workers=%d doctor_workers=%d",
		cfg.Duration, cfg.PatientWorkers, cfg.DoctorWorkers)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PgMaxConns, cfg.ConnectTimeout)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	if err := verifyStore(context.Background(), pgPool); err != nil {
		log.Fatalf("store verification FAILED: %v", err)
	}
	log.Println("store verification passed: no matched request without a doctor")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		PatientWorkers: getInt("SIM_PATIENT_WORKERS", 10),
		DoctorWorkers:  getInt("SIM_DOCTOR_WORKERS", 10),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:    getInt("SIM_DOCTOR_LIMIT", 100),
		PostgresDSN:    baseCfg.PostgresDSN,
		PgMaxConns:     baseCfg.PgMaxConns,
		ConnectTimeout: baseCfg.ConnectTimeout,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.PatientWorkers <= 0 || cfg.DoctorWorkers <= 0 {
		return fmt.Errorf("SIM_PATIENT_WORKERS and SIM_DOCTOR_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, specialty FROM doctors LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a actor
		if err := rows.Scan(&a.ID, &a.Specialty); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, a)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup

	for i := 0; i < s.config.PatientWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.patientLoop(ctx)
		}()
	}

	for i := 0; i < s.config.DoctorWorkers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.doctorLoop(ctx, s.pool.Doctors[n%len(s.pool.Doctors)])
		}(i)
	}

	wg.Wait()
}

// patientLoop creates a request, pays for it, then polls its status a few
// times the way a waiting client would.
func (s *Simulator) patientLoop(ctx context.Context) {
	for ctx.Err() == nil {
		patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

		reqID, ok := s.createRequest(ctx, patientID)
		if !ok {
			continue
		}
		s.pool.AddRequest(reqID)
		s.payRequest(ctx, patientID, reqID)

		for i := 0; i < 3 && ctx.Err() == nil; i++ {
			s.pollStatus(ctx, patientID, reqID)
			time.Sleep(time.Duration(rand.Intn(400)) * time.Millisecond)
		}
	}
}

// doctorLoop mimics the doctor dashboard: list pending, grab the oldest.
// Every worker grabs the head of the queue on purpose, to maximize claim
// contention.
func (s *Simulator) doctorLoop(ctx context.Context, doc actor) {
	for ctx.Err() == nil {
		pending := s.listPending(ctx, doc)
		if len(pending) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		s.acceptRequest(ctx, doc.ID, pending[0])
	}
}

type instantResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type conflictResponse struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_request_id"`
}

func (s *Simulator) createRequest(ctx context.Context, patientID uuid.UUID) (uuid.UUID, bool) {
	specialty := s.pool.Doctors[rand.Intn(len(s.pool.Doctors))].Specialty
	body, _ := json.Marshal(map[string]string{"specialty": specialty})

	start := time.Now()
	status, respBody := s.post(ctx, patientID, "/instant-requests", body)
	latency := time.Since(start)

	switch status {
	case http.StatusCreated:
		s.metrics.Create.Record(latency, true, false)
		var resp instantResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return uuid.Nil, false
		}
		return resp.ID, true
	case http.StatusConflict:
		// Patient already has an active request: ride the existing one.
		s.metrics.Create.Record(latency, false, true)
		var resp conflictResponse
		if err := json.Unmarshal(respBody, &resp); err == nil && resp.ExistingID != "" {
			if id, err := uuid.Parse(resp.ExistingID); err == nil {
				return id, true
			}
		}
		return uuid.Nil, false
	default:
		s.metrics.Create.Record(latency, false, false)
		return uuid.Nil, false
	}
}

func (s *Simulator) payRequest(ctx context.Context, patientID, reqID uuid.UUID) {
	start := time.Now()
	status, _ := s.post(ctx, patientID, "/instant-requests/"+reqID.String()+"/pay", nil)
	s.metrics.Pay.Record(time.Since(start), status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) pollStatus(ctx context.Context, patientID, reqID uuid.UUID) {
	start := time.Now()
	status, _ := s.get(ctx, patientID, "/instant-requests/"+reqID.String())
	s.metrics.Status.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) listPending(ctx context.Context, doc actor) []uuid.UUID {
	status, body := s.get(ctx, doc.ID, "/instant-requests/pending?specialty="+doc.Specialty)
	if status != http.StatusOK {
		return nil
	}

	var resp []instantResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(resp))
	for _, r := range resp {
		ids = append(ids, r.ID)
	}
	return ids
}

func (s *Simulator) acceptRequest(ctx context.Context, doctorID, reqID uuid.UUID) {
	start := time.Now()
	status, _ := s.post(ctx, doctorID, "/instant-requests/"+reqID.String()+"/accept", nil)
	s.metrics.Accept.Record(time.Since(start), status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) post(ctx context.Context, actorID uuid.UUID, path string, body []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actorID.String())
	return s.do(req)
}

func (s *Simulator) get(ctx context.Context, actorID uuid.UUID, path string) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("X-Actor-ID", actorID.String())
	return s.do(req)
}

func (s *Simulator) do(req *http.Request) (int, []byte) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("==== simulation report ====")
	printOp("create", &s.metrics.Create)
	printOp("pay", &s.metrics.Pay)
	printOp("accept", &s.metrics.Accept)
	printOp("status", &s.metrics.Status)

	won := atomic.LoadInt64(&s.metrics.Accept.Success)
	lost := atomic.LoadInt64(&s.metrics.Accept.Conflict)
	fmt.Printf("\naccept contention: won=%d lost=%d (lost accepts are the losing side of the conditional claim)\n", won, lost)
}

func printOp(name string, om *OperationMetrics) {
	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-8s total=%-6d ok=%-6d conflict=%-6d err=%-6d avg=%s min=%s max=%s p50=%s p95=%s\n",
		name,
		atomic.LoadInt64(&om.Total),
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, min, max, p50, p95,
	)
}

// verifyStore asserts the load-bearing invariant directly against Postgres:
// no request that left the waiting state may be missing its doctor.
func verifyStore(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var orphaned int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM instant_requests
		WHERE status IN ('matched', 'in_progress', 'completed')
		  AND doctor_id IS NULL
	`).Scan(&orphaned)
	if err != nil {
		return fmt.Errorf("verification query: %w", err)
	}
	if orphaned > 0 {
		return fmt.Errorf("%d matched requests have no doctor", orphaned)
	}

	var doubled int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM instant_requests
		GROUP BY patient_id
		HAVING count(*) FILTER (WHERE status IN ('waiting', 'matched', 'in_progress')) > 1
		LIMIT 1
	`).Scan(&doubled)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// no patient over the limit
	case err != nil:
		return fmt.Errorf("verification query: %w", err)
	case doubled > 0:
		return fmt.Errorf("a patient holds more than one active request")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
