package instant

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo implements Repository in memory. Every method holds the mutex for
// its whole body, so the conditional writes have the same atomicity as the
// SQL they stand in for.
type memRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
	doctors  map[uuid.UUID]string // id -> specialty
}

func newMemRepo() *memRepo {
	return &memRepo{
		requests: make(map[uuid.UUID]*Request),
		doctors:  make(map[uuid.UUID]string),
	}
}

func (m *memRepo) addDoctor(specialty string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = specialty
	return id
}

func (m *memRepo) snapshot(r *Request) *Request {
	cp := *r
	return &cp
}

func (m *memRepo) GetRequestByID(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return m.snapshot(r), nil
}

func (m *memRepo) GetActiveByPatient(_ context.Context, patientID uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.PatientID == patientID && r.Status.Active() {
			return m.snapshot(r), nil
		}
	}
	return nil, ErrRequestNotFound
}

func (m *memRepo) CreateIfNoneActive(_ context.Context, r *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.PatientID == r.PatientID && existing.Status.Active() {
			return nil, ErrDuplicateActive
		}
	}
	cp := *r
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.requests[cp.ID] = &cp
	return m.snapshot(&cp), nil
}

func (m *memRepo) AcceptWaiting(_ context.Context, id, doctorID uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusWaiting || r.PaymentStatus != PaymentPaid {
		return nil, ErrNoLongerAvailable
	}
	did := doctorID
	now := time.Now()
	r.DoctorID = &did
	r.Status = StatusMatched
	r.MatchedAt = &now
	r.UpdatedAt = now
	return m.snapshot(r), nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return m.snapshot(r), nil
}

func (m *memRepo) CompleteRequest(_ context.Context, id uuid.UUID, notes, transcription *string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || (r.Status != StatusMatched && r.Status != StatusInProgress) {
		return nil, ErrRequestNotFound
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	if notes != nil {
		r.Notes = notes
	}
	if transcription != nil {
		r.Transcription = transcription
	}
	r.UpdatedAt = now
	return m.snapshot(r), nil
}

func (m *memRepo) SetPaymentStatus(_ context.Context, id uuid.UUID, ps PaymentStatus) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	r.PaymentStatus = ps
	r.UpdatedAt = time.Now()
	return m.snapshot(r), nil
}

func (m *memRepo) SetRating(_ context.Context, id uuid.UUID, rating int, review *string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	r.Rating = &rating
	r.Review = review
	r.UpdatedAt = time.Now()
	return m.snapshot(r), nil
}

func (m *memRepo) ListPending(_ context.Context, specialty string) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.requests {
		if r.Status != StatusWaiting || r.PaymentStatus != PaymentPaid {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Specialty), strings.ToLower(specialty)) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) DoctorSpecialty(_ context.Context, doctorID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.doctors[doctorID]
	if !ok {
		return "", ErrDoctorNotFound
	}
	return sp, nil
}

func (m *memRepo) FindStaleWaiting(_ context.Context, olderThan time.Time) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.requests {
		if r.Status == StatusWaiting && r.CreatedAt.Before(olderThan) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// passLocker runs the callback without any real locking; the conditional
// insert is on its own then, which is exactly what the duplicate tests probe.
type passLocker struct{}

func (passLocker) WithPatientLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingRefund struct {
	mu       sync.Mutex
	refunded []uuid.UUID
}

func (r *recordingRefund) Refund(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunded = append(r.refunded, req.ID)
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, passLocker{}, nil, nil, 49900, nil)
}

func createPaid(t *testing.T, svc *Service, patientID uuid.UUID) *Request {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), patientID, "General Medicine")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), req.ID, patientID)
	require.NoError(t, err)
	return req
}

func TestCreateRequest(t *testing.T) {
	svc := newTestService(newMemRepo())

	req, err := svc.CreateRequest(context.Background(), uuid.New(), "Cardiology")
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, req.Status)
	assert.Equal(t, PaymentPending, req.PaymentStatus)
	assert.Equal(t, int64(49900), req.Amount)
	assert.Nil(t, req.DoctorID)
	assert.Contains(t, req.MeetingLink, "im-")
}

func TestCreateRequestSecondActiveRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	patientID := uuid.New()

	first, err := svc.CreateRequest(context.Background(), patientID, "Cardiology")
	require.NoError(t, err)

	_, err = svc.CreateRequest(context.Background(), patientID, "Dermatology")
	var active *ActiveRequestError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.ID, active.ExistingID)

	// No second record was written.
	assert.Len(t, repo.requests, 1)
}

func TestCreateRequestAllowedAfterPriorSettles(t *testing.T) {
	svc := newTestService(newMemRepo())
	patientID, doctorID := uuid.New(), uuid.New()

	first := createPaid(t, svc, patientID)
	_, err := svc.Accept(context.Background(), first.ID, doctorID)
	require.NoError(t, err)
	_, err = svc.End(context.Background(), first.ID, nil, nil)
	require.NoError(t, err)

	second, err := svc.CreateRequest(context.Background(), patientID, "Cardiology")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAcceptConcurrentSingleWinner(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	req := createPaid(t, svc, uuid.New())

	const doctors = 8
	var wg sync.WaitGroup
	results := make(chan error, doctors)
	winners := make(chan uuid.UUID, doctors)

	for i := 0; i < doctors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doctorID := uuid.New()
			matched, err := svc.Accept(context.Background(), req.ID, doctorID)
			results <- err
			if err == nil {
				winners <- *matched.DoctorID
			}
		}()
	}
	wg.Wait()
	close(results)
	close(winners)

	won, lost := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, ErrNoLongerAvailable)
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one doctor must win the claim")
	assert.Equal(t, doctors-1, lost)

	stored, err := repo.GetRequestByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, stored.Status)
	require.NotNil(t, stored.DoctorID)
	assert.Equal(t, <-winners, *stored.DoctorID)
	assert.NotNil(t, stored.MatchedAt)
}

func TestAcceptUnpaidRejected(t *testing.T) {
	svc := newTestService(newMemRepo())

	req, err := svc.CreateRequest(context.Background(), uuid.New(), "Cardiology")
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNoLongerAvailable)
}

func TestCancelOnlyWhileWaiting(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	patientID, doctorID := uuid.New(), uuid.New()
	req := createPaid(t, svc, patientID)

	_, err := svc.Accept(context.Background(), req.ID, doctorID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), req.ID, patientID)
	assert.ErrorIs(t, err, ErrDoctorCommitted)

	// State untouched by the failed cancel.
	stored, err := repo.GetRequestByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, stored.Status)
}

func TestCancelRefundsPaidRequest(t *testing.T) {
	repo := newMemRepo()
	refund := &recordingRefund{}
	svc := NewService(repo, passLocker{}, nil, refund, 49900, nil)
	patientID := uuid.New()
	req := createPaid(t, svc, patientID)

	cancelled, err := svc.Cancel(context.Background(), req.ID, patientID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, []uuid.UUID{req.ID}, refund.refunded)
}

func TestCancelUnpaidSkipsRefund(t *testing.T) {
	repo := newMemRepo()
	refund := &recordingRefund{}
	svc := NewService(repo, passLocker{}, nil, refund, 49900, nil)
	patientID := uuid.New()

	req, err := svc.CreateRequest(context.Background(), patientID, "Cardiology")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), req.ID, patientID)
	require.NoError(t, err)
	assert.Empty(t, refund.refunded)
}

func TestCancelOnlyPatient(t *testing.T) {
	svc := newTestService(newMemRepo())
	req := createPaid(t, svc, uuid.New())

	_, err := svc.Cancel(context.Background(), req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotYourRequest)
}

func TestStartIsFirstTransitionWins(t *testing.T) {
	svc := newTestService(newMemRepo())
	req := createPaid(t, svc, uuid.New())

	_, err := svc.Accept(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)

	started, err := svc.Start(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	// Second start is a no-op snapshot, not an error.
	again, err := svc.Start(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, again.Status)
}

func TestEndStampsCompletion(t *testing.T) {
	svc := newTestService(newMemRepo())
	req := createPaid(t, svc, uuid.New())

	_, err := svc.Accept(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), req.ID)
	require.NoError(t, err)

	notes := "follow up in two weeks"
	transcript := "patient reported mild symptoms"
	done, err := svc.End(context.Background(), req.ID, &notes, &transcript)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, notes, *done.Notes)
	assert.Equal(t, transcript, *done.Transcription)
}

func TestEndBeforeMatchRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	req := createPaid(t, svc, uuid.New())

	// Still waiting: there is no consultation to end, and the request is
	// not reported as missing.
	_, err := svc.End(context.Background(), req.ID, nil, nil)
	assert.ErrorIs(t, err, ErrNotInSession)
	assert.NotErrorIs(t, err, ErrRequestNotFound)

	stored, getErr := repo.GetRequestByID(context.Background(), req.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusWaiting, stored.Status)
}

func TestEndCancelledRejected(t *testing.T) {
	svc := newTestService(newMemRepo())
	req := createPaid(t, svc, uuid.New())

	_, err := svc.Cancel(context.Background(), req.ID, req.PatientID)
	require.NoError(t, err)

	_, err = svc.End(context.Background(), req.ID, nil, nil)
	assert.ErrorIs(t, err, ErrNotInSession)
}

func TestEndUnknownRequest(t *testing.T) {
	svc := newTestService(newMemRepo())

	_, err := svc.End(context.Background(), uuid.New(), nil, nil)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

// settledRaceRepo simulates the narrow window where the conditional insert
// reports a duplicate but the surviving request settles before the
// follow-up read.
type settledRaceRepo struct {
	*memRepo
}

func (r *settledRaceRepo) CreateIfNoneActive(context.Context, *Request) (*Request, error) {
	return nil, ErrDuplicateActive
}

func (r *settledRaceRepo) GetActiveByPatient(context.Context, uuid.UUID) (*Request, error) {
	return nil, ErrRequestNotFound
}

func TestCreateRequestSurvivorSettledIsRetryable(t *testing.T) {
	svc := newTestService(&settledRaceRepo{memRepo: newMemRepo()})

	_, err := svc.CreateRequest(context.Background(), uuid.New(), "Cardiology")
	assert.ErrorIs(t, err, ErrRequestBeingCreated)
}

func TestRateGates(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	patientID := uuid.New()
	req := createPaid(t, svc, patientID)

	_, err := svc.Rate(context.Background(), req.ID, patientID, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = svc.Rate(context.Background(), req.ID, patientID, 6, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)

	// Still waiting: not ratable.
	_, err = svc.Rate(context.Background(), req.ID, patientID, 5, nil)
	assert.ErrorIs(t, err, ErrNotCompleted)

	_, err = svc.Accept(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.End(context.Background(), req.ID, nil, nil)
	require.NoError(t, err)

	_, err = svc.Rate(context.Background(), req.ID, uuid.New(), 5, nil)
	assert.ErrorIs(t, err, ErrNotYourRequest)

	rated, err := svc.Rate(context.Background(), req.ID, patientID, 5, nil)
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 5, *rated.Rating)

	stored, _ := repo.GetRequestByID(context.Background(), req.ID)
	require.NotNil(t, stored.Rating)
}

func TestListPendingFIFO(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	doctorID := repo.addDoctor("General Medicine")
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		req := createPaid(t, svc, uuid.New())
		ids = append(ids, req.ID)
		time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	}

	pending, err := svc.ListPending(context.Background(), doctorID, "")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, req := range pending {
		assert.Equal(t, ids[i], req.ID, "oldest request first")
	}
}

func TestListPendingExcludesUnpaidAndClaimed(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	doctorID := repo.addDoctor("General Medicine")

	_, err := svc.CreateRequest(context.Background(), uuid.New(), "General Medicine") // unpaid
	require.NoError(t, err)
	claimed := createPaid(t, svc, uuid.New())
	_, err = svc.Accept(context.Background(), claimed.ID, doctorID)
	require.NoError(t, err)
	visible := createPaid(t, svc, uuid.New())

	pending, err := svc.ListPending(context.Background(), doctorID, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, visible.ID, pending[0].ID)
}

func TestListPendingSpecialtyMatch(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	cardiologist := repo.addDoctor("Cardiologist")

	cardio, err := svc.CreateRequest(context.Background(), uuid.New(), "Cardiologist")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), cardio.ID, cardio.PatientID)
	require.NoError(t, err)
	derm, err := svc.CreateRequest(context.Background(), uuid.New(), "Dermatology")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), derm.ID, derm.PatientID)
	require.NoError(t, err)

	// Lower-case substring matches the mixed-case specialty.
	pending, err := svc.ListPending(context.Background(), cardiologist, "cardio")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cardio.ID, pending[0].ID)

	// Empty filter falls back to the doctor's own specialty.
	pending, err = svc.ListPending(context.Background(), cardiologist, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cardio.ID, pending[0].ID)

	// Unknown doctors with no explicit filter get a distinguishable error.
	_, err = svc.ListPending(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestStatusVisibility(t *testing.T) {
	svc := newTestService(newMemRepo())
	patientID, doctorID := uuid.New(), uuid.New()
	req := createPaid(t, svc, patientID)

	_, err := svc.Status(context.Background(), req.ID, patientID)
	require.NoError(t, err)

	// Doctor sees nothing until matched.
	_, err = svc.Status(context.Background(), req.ID, doctorID)
	assert.ErrorIs(t, err, ErrNotYourRequest)

	_, err = svc.Accept(context.Background(), req.ID, doctorID)
	require.NoError(t, err)

	_, err = svc.Status(context.Background(), req.ID, doctorID)
	require.NoError(t, err)
}

func TestSweepStaleWaiting(t *testing.T) {
	repo := newMemRepo()
	refund := &recordingRefund{}
	svc := NewService(repo, passLocker{}, nil, refund, 49900, nil)

	stale := createPaid(t, svc, uuid.New())
	repo.mu.Lock()
	repo.requests[stale.ID].CreatedAt = time.Now().Add(-7 * time.Hour)
	repo.mu.Unlock()

	fresh := createPaid(t, svc, uuid.New())

	swept, err := svc.SweepStaleWaiting(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, []uuid.UUID{stale.ID}, refund.refunded)

	staleStored, _ := repo.GetRequestByID(context.Background(), stale.ID)
	assert.Equal(t, StatusCancelled, staleStored.Status)
	freshStored, _ := repo.GetRequestByID(context.Background(), fresh.ID)
	assert.Equal(t, StatusWaiting, freshStored.Status)
}
