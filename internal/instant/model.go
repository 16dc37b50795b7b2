package instant

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusMatched    Status = "matched"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether a request still occupies the patient's single
// active-request slot.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusMatched || s == StatusInProgress
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Request is one on-demand consultation request. DoctorID is nil until a
// doctor claims it; it is set exactly once, atomically with the
// waiting -> matched transition.
type Request struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DoctorID      *uuid.UUID
	Specialty     string
	Status        Status
	PaymentStatus PaymentStatus
	Amount        int64
	MeetingLink   string
	Notes         *string
	MatchedAt     *time.Time
	CompletedAt   *time.Time
	Rating        *int
	Review        *string
	Transcription *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
