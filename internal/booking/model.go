package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID           uuid.UUID
	Name         string
	Specialty    string
	Availability *schedule.AvailabilityTemplate // nil until the doctor configures one
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Appointment is one scheduled (non-instant) consultation. Status moves one
// way only; payment state advances independently of it.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          AppointmentStatus
	PaymentStatus   PaymentStatus
	Amount          int64
	MeetingLink     string
	Notes           *string
	Rating          *int
	Review          *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration falls back to the platform default when the stored value is unset.
func (a *Appointment) Duration() time.Duration {
	mins := a.DurationMinutes
	if mins <= 0 {
		mins = schedule.DefaultBookingMinutes
	}
	return time.Duration(mins) * time.Minute
}

// Joinable reports whether a participant may enter the meeting room at now:
// inside [scheduledAt - joinWindow, scheduledAt + duration) while still
// scheduled. Read-side convenience only; the link itself is not time-gated.
func (a *Appointment) Joinable(now time.Time, joinWindow time.Duration) bool {
	if a.Status != StatusScheduled {
		return false
	}
	opens := a.ScheduledAt.Add(-joinWindow)
	closes := a.ScheduledAt.Add(a.Duration())
	return !now.Before(opens) && now.Before(closes)
}
