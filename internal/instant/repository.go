package instant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound = errors.New("instant request not found")
	ErrDoctorNotFound  = errors.New("doctor not found")

	// ErrNoLongerAvailable means the conditional claim matched zero rows:
	// another doctor got there first, or the request left the waiting
	// state. Callers must re-fetch the pending list, not retry blindly.
	ErrNoLongerAvailable = errors.New("request is no longer available")

	// ErrDuplicateActive means the conditional insert was skipped because
	// the patient already holds an active request.
	ErrDuplicateActive = errors.New("patient already has an active request")
)

// Repository contains all DB interactions needed by the instant-match
// engine. The two conditional writes (CreateIfNoneActive, AcceptWaiting)
// are single atomic store operations; everything else is plain CRUD.
type Repository interface {
	GetRequestByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Request, error)

	// CreateIfNoneActive inserts the request only when the patient has no
	// request in {waiting, matched, in_progress}; otherwise ErrDuplicateActive.
	CreateIfNoneActive(ctx context.Context, r *Request) (*Request, error)

	// AcceptWaiting is the compare-and-swap claim: in one store operation it
	// matches {id, status=waiting, payment_status=paid} and sets
	// {doctor_id, status=matched, matched_at}. Zero rows -> ErrNoLongerAvailable.
	AcceptWaiting(ctx context.Context, id, doctorID uuid.UUID) (*Request, error)

	// UpdateStatus fires only on an exact current-status match.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Request, error)

	CompleteRequest(ctx context.Context, id uuid.UUID, notes, transcription *string) (*Request, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, ps PaymentStatus) (*Request, error)
	SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (*Request, error)

	// ListPending returns waiting+paid requests whose specialty matches the
	// case-insensitive substring, oldest first.
	ListPending(ctx context.Context, specialty string) ([]Request, error)

	// DoctorSpecialty resolves a doctor's stored specialty, used as the
	// default pending-list filter.
	DoctorSpecialty(ctx context.Context, doctorID uuid.UUID) (string, error)

	// FindStaleWaiting feeds the out-of-band sweeper.
	FindStaleWaiting(ctx context.Context, olderThan time.Time) ([]Request, error)
}
