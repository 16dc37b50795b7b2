package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking service and
// the slot calculator.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Targeted mutations
	SetPaymentStatus(ctx context.Context, id uuid.UUID, ps PaymentStatus) (*Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus, notes *string) (*Appointment, error)
	SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (*Appointment, error)

	// Slot calculator inputs (schedule.TemplateStore / schedule.BusyStore)
	AvailabilityForDoctor(ctx context.Context, doctorID uuid.UUID) (*schedule.AvailabilityTemplate, error)
	SaveAvailability(ctx context.Context, doctorID uuid.UUID, tpl schedule.AvailabilityTemplate) error
	BusyIntervalsForDay(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]schedule.Interval, error)
}
