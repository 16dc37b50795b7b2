package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/logging"
	"github.com/medimeet/telehealth-scheduling/internal/meeting"
)

var (
	ErrNotYourAppointment      = errors.New("actor is not a participant of this appointment")
	ErrNotCompleted            = errors.New("appointment is not completed")
	ErrInvalidRating           = errors.New("rating must be between 1 and 5")
	ErrInvalidStatusTransition = errors.New("appointment state does not allow this transition")
)

// Service owns the scheduled-appointment lifecycle: creation, payment
// confirmation, cancellation, completion and rating. Authorization is
// relationship-based: the identity layer hands us an actor id, we check it
// against the record.
type Service struct {
	repo       Repository
	joinWindow time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(repo Repository, joinWindow time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:       repo,
		joinWindow: joinWindow,
		logger:     logger,
		now:        time.Now,
	}
}

// Create books a slot for a patient with a doctor. The chosen slot is
// trusted as supplied; availability was computed by the caller from the
// slot calculator and is not re-checked here.
func (s *Service) Create(ctx context.Context, patientID, doctorID uuid.UUID, slotStart time.Time, amount int64, durationMinutes int, notes *string) (*Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	appt := &Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		DoctorID:        doctorID,
		ScheduledAt:     slotStart,
		DurationMinutes: durationMinutes,
		Status:          StatusScheduled,
		PaymentStatus:   PaymentPending,
		Amount:          amount,
		MeetingLink:     meeting.NewRoomID(meeting.ScheduledPrefix),
		Notes:           notes,
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info("appointment created",
		"appointment_id", created.ID,
		"patient_id", patientID,
		"doctor_id", doctorID,
		"scheduled_at", slotStart,
	)
	return created, nil
}

// ConfirmPayment marks the appointment paid. Only the booking patient may
// confirm.
func (s *Service) ConfirmPayment(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actorID {
		return nil, ErrNotYourAppointment
	}

	updated, err := s.repo.SetPaymentStatus(ctx, id, PaymentPaid)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	s.logger.Info("appointment payment confirmed", "appointment_id", id)
	return updated, nil
}

// Cancel may be called by either participant any time before completion.
// Re-cancelling an already cancelled appointment succeeds again; there has
// never been a guard against it and callers rely on the idempotency.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actorID && appt.DoctorID != actorID {
		return nil, ErrNotYourAppointment
	}
	if appt.Status == StatusCompleted {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.SetStatus(ctx, id, StatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	s.logger.Info("appointment cancelled", "appointment_id", id, "actor_id", actorID)
	return updated, nil
}

// Complete is doctor-only and optionally overwrites the consultation notes.
func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID, notes *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != actorID {
		return nil, ErrNotYourAppointment
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.SetStatus(ctx, id, StatusCompleted, notes)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	s.logger.Info("appointment completed", "appointment_id", id)
	return updated, nil
}

// Rate records the patient's rating once the consultation is completed.
// Out-of-range values are rejected before anything is persisted.
func (s *Service) Rate(ctx context.Context, id, actorID uuid.UUID, rating int, review *string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actorID {
		return nil, ErrNotYourAppointment
	}
	if appt.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}

	updated, err := s.repo.SetRating(ctx, id, rating, review)
	if err != nil {
		return nil, fmt.Errorf("rate appointment: %w", err)
	}
	s.logger.Info("appointment rated", "appointment_id", id, "rating", rating)
	return updated, nil
}

// Get returns an appointment visible to one of its participants.
func (s *Service) Get(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actorID && appt.DoctorID != actorID {
		return nil, ErrNotYourAppointment
	}
	return appt, nil
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListByDoctor returns a doctor's appointments, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

// IsJoinable applies the platform join window to an appointment.
func (s *Service) IsJoinable(appt *Appointment) bool {
	return appt.Joinable(s.now(), s.joinWindow)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
