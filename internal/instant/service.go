package instant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/logging"
	"github.com/medimeet/telehealth-scheduling/internal/meeting"
	redisclient "github.com/medimeet/telehealth-scheduling/internal/redis"
)

var (
	ErrNotYourRequest = errors.New("actor is not a participant of this request")
	ErrNotCompleted   = errors.New("request is not completed")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")

	// ErrNotInSession means an end was attempted on a request that exists
	// but is not matched or in progress.
	ErrNotInSession = errors.New("request has no active consultation to end")

	// ErrDoctorCommitted is returned when a patient tries to cancel after a
	// doctor has accepted. Once matched, the commitment is firm.
	ErrDoctorCommitted = errors.New("a doctor has already accepted this request")

	// ErrRequestBeingCreated means another create for the same patient holds
	// the lock right now.
	ErrRequestBeingCreated = errors.New("a request is currently being created for this patient, please retry")
)

// ActiveRequestError reports the duplicate-create condition along with the
// existing request's id so the caller can route the patient back to it.
type ActiveRequestError struct {
	ExistingID uuid.UUID
}

func (e *ActiveRequestError) Error() string {
	return fmt.Sprintf("patient already has an active instant request %s", e.ExistingID)
}

// RefundHook is the compensation step for cancelled paid requests. The
// payment provider integration lives outside this core; deployments plug
// theirs in, everything else gets the no-op.
type RefundHook interface {
	Refund(ctx context.Context, r *Request) error
}

type NoopRefund struct{}

func (NoopRefund) Refund(context.Context, *Request) error { return nil }

// Service runs the instant-consultation queue: patients enqueue a request
// per specialty, doctors claim the oldest paid one, and the lifecycle walks
// waiting -> matched -> in_progress -> completed with no path back.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier redisclient.MatchNotifier
	refund   RefundHook
	amount   int64
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier redisclient.MatchNotifier, refund RefundHook, amount int64, logger *logging.Logger) *Service {
	if refund == nil {
		refund = NoopRefund{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		refund:   refund,
		amount:   amount,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateRequest opens a waiting request for the patient. A patient holds at
// most one active request: the per-patient lock narrows the window, the
// conditional insert closes it. A duplicate create returns the existing
// request's id instead of a second record.
func (s *Service) CreateRequest(ctx context.Context, patientID uuid.UUID, specialty string) (*Request, error) {
	var created *Request

	err := s.locker.WithPatientLock(ctx, patientID, func(lockCtx context.Context) error {
		existing, err := s.repo.GetActiveByPatient(lockCtx, patientID)
		if err != nil && !errors.Is(err, ErrRequestNotFound) {
			return fmt.Errorf("check active request: %w", err)
		}
		if existing != nil {
			return &ActiveRequestError{ExistingID: existing.ID}
		}

		req := &Request{
			ID:            uuid.New(),
			PatientID:     patientID,
			Specialty:     specialty,
			Status:        StatusWaiting,
			PaymentStatus: PaymentPending,
			Amount:        s.amount,
			MeetingLink:   meeting.NewRoomID(meeting.InstantPrefix),
		}

		created, err = s.repo.CreateIfNoneActive(lockCtx, req)
		if err != nil {
			if errors.Is(err, ErrDuplicateActive) {
				// Insert lost a race the lock did not cover (e.g. lock TTL
				// expiry). Surface the surviving request.
				active, lookupErr := s.repo.GetActiveByPatient(lockCtx, patientID)
				if lookupErr != nil {
					if errors.Is(lookupErr, ErrRequestNotFound) {
						// The survivor settled before we could read it; a
						// plain retry will succeed.
						return ErrRequestBeingCreated
					}
					return fmt.Errorf("load surviving active request: %w", lookupErr)
				}
				return &ActiveRequestError{ExistingID: active.ID}
			}
			return fmt.Errorf("create request: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRequestBeingCreated
		}
		return nil, err
	}

	s.logger.Info("instant request created",
		"request_id", created.ID,
		"patient_id", patientID,
		"specialty", specialty,
	)
	return created, nil
}

// ConfirmPayment marks the request paid; only then does it surface to
// doctors. Only the requesting patient may confirm.
func (s *Service) ConfirmPayment(ctx context.Context, id, actorID uuid.UUID) (*Request, error) {
	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != actorID {
		return nil, ErrNotYourRequest
	}

	updated, err := s.repo.SetPaymentStatus(ctx, id, PaymentPaid)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	s.logger.Info("instant request payment confirmed", "request_id", id)
	return updated, nil
}

// ListPending returns the paid waiting requests matching the specialty,
// oldest first, so doctors drain the queue fairly. An empty specialty
// defaults to the calling doctor's own.
func (s *Service) ListPending(ctx context.Context, doctorID uuid.UUID, specialty string) ([]Request, error) {
	if specialty == "" {
		sp, err := s.repo.DoctorSpecialty(ctx, doctorID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("resolve doctor specialty: %w", err)
		}
		specialty = sp
	}

	reqs, err := s.repo.ListPending(ctx, specialty)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return reqs, nil
}

// Accept claims a waiting request for a doctor. The claim is a single
// conditional store write: exactly one of any number of concurrent accepts
// wins, the rest get ErrNoLongerAvailable and must re-fetch the list.
func (s *Service) Accept(ctx context.Context, id, doctorID uuid.UUID) (*Request, error) {
	req, err := s.repo.AcceptWaiting(ctx, id, doctorID)
	if err != nil {
		if errors.Is(err, ErrNoLongerAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("accept request: %w", err)
	}

	if s.notifier != nil {
		if pubErr := s.notifier.PublishMatched(ctx, req.ID, doctorID); pubErr != nil {
			// Polling still observes the match; only the latency bound is lost.
			s.logger.Warn("matched event publish failed", "request_id", req.ID, "error", pubErr)
		}
	}

	s.logger.Info("instant request matched", "request_id", req.ID, "doctor_id", doctorID)
	return req, nil
}

// Start moves a matched request in progress. Any other current state is a
// no-op: both parties may race to start and only the first transition fires.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Request, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, StatusMatched, StatusInProgress)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return s.repo.GetRequestByID(ctx, id)
		}
		return nil, fmt.Errorf("start request: %w", err)
	}
	return updated, nil
}

// End completes the consultation, stamping completed_at and storing any
// notes or transcription handed over by the caller.
func (s *Service) End(ctx context.Context, id uuid.UUID, notes, transcription *string) (*Request, error) {
	updated, err := s.repo.CompleteRequest(ctx, id, notes, transcription)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// The conditional update matched nothing. Distinguish a missing
			// record from one outside matched/in_progress.
			if _, readErr := s.repo.GetRequestByID(ctx, id); readErr != nil {
				return nil, readErr
			}
			return nil, ErrNotInSession
		}
		return nil, fmt.Errorf("end request: %w", err)
	}
	s.logger.Info("instant request completed", "request_id", id)
	return updated, nil
}

// Cancel is patient-only and only valid while waiting. After a doctor has
// committed the patient cannot unilaterally back out.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Request, error) {
	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != actorID {
		return nil, ErrNotYourRequest
	}
	if req.Status != StatusWaiting {
		return nil, ErrDoctorCommitted
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusWaiting, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// A doctor accepted between our read and the conditional update.
			return nil, ErrDoctorCommitted
		}
		return nil, fmt.Errorf("cancel request: %w", err)
	}

	if updated.PaymentStatus == PaymentPaid {
		if refundErr := s.refund.Refund(ctx, updated); refundErr != nil {
			s.logger.Error("refund hook failed", "request_id", id, "error", refundErr)
		}
	}

	s.logger.Info("instant request cancelled", "request_id", id)
	return updated, nil
}

// Rate records the patient's rating after completion.
func (s *Service) Rate(ctx context.Context, id, actorID uuid.UUID, rating int, review *string) (*Request, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != actorID {
		return nil, ErrNotYourRequest
	}
	if req.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}

	updated, err := s.repo.SetRating(ctx, id, rating, review)
	if err != nil {
		return nil, fmt.Errorf("rate request: %w", err)
	}
	s.logger.Info("instant request rated", "request_id", id, "rating", rating)
	return updated, nil
}

// Status returns a snapshot for polling clients. Visible to the patient
// and, once matched, the doctor.
func (s *Service) Status(ctx context.Context, id, actorID uuid.UUID) (*Request, error) {
	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != actorID && (req.DoctorID == nil || *req.DoctorID != actorID) {
		return nil, ErrNotYourRequest
	}
	return req, nil
}

// AwaitMatch blocks until the request is matched or ctx expires, then
// returns the current snapshot. It subscribes before re-reading state, so a
// match landing in between is never missed. Plain Status polling remains
// valid; this only bounds the notification latency.
func (s *Service) AwaitMatch(ctx context.Context, id, actorID uuid.UUID) (*Request, error) {
	req, err := s.Status(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusWaiting || s.notifier == nil {
		return req, nil
	}

	waitCh := make(chan error, 1)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, waitErr := s.notifier.WaitForMatch(waitCtx, id)
		waitCh <- waitErr
	}()

	// The subscription may have gone live after the accept; re-check once.
	req, err = s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusWaiting {
		return req, nil
	}

	if waitErr := <-waitCh; waitErr != nil && !errors.Is(waitErr, context.DeadlineExceeded) && !errors.Is(waitErr, context.Canceled) {
		s.logger.Warn("match wait degraded to snapshot", "request_id", id, "error", waitErr)
	}

	return s.repo.GetRequestByID(ctx, id)
}

// SweepStaleWaiting cancels waiting requests older than maxAge. This is the
// out-of-band cleanup path; the engine itself never expires anything.
func (s *Service) SweepStaleWaiting(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	stale, err := s.repo.FindStaleWaiting(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale waiting requests: %w", err)
	}

	swept := 0
	for _, req := range stale {
		cancelled, err := s.repo.UpdateStatus(ctx, req.ID, StatusWaiting, StatusCancelled)
		if err != nil {
			if errors.Is(err, ErrRequestNotFound) {
				continue // claimed or cancelled since the scan
			}
			s.logger.Error("sweep failed for request", "request_id", req.ID, "error", err)
			continue
		}
		if cancelled.PaymentStatus == PaymentPaid {
			if refundErr := s.refund.Refund(ctx, cancelled); refundErr != nil {
				s.logger.Error("refund hook failed during sweep", "request_id", req.ID, "error", refundErr)
			}
		}
		swept++
	}

	return swept, nil
}
