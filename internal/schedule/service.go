package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/logging"
)

// TemplateStore reads and writes a doctor's availability template.
// A nil template (no error) means the doctor has not configured one.
type TemplateStore interface {
	AvailabilityForDoctor(ctx context.Context, doctorID uuid.UUID) (*AvailabilityTemplate, error)
	SaveAvailability(ctx context.Context, doctorID uuid.UUID, tpl AvailabilityTemplate) error
}

// BusyStore lists the busy windows of a doctor's non-cancelled bookings
// inside [dayStart, dayEnd).
type BusyStore interface {
	BusyIntervalsForDay(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]Interval, error)
}

// Service resolves a doctor's bookable slots from stored state. The slot
// math itself lives in AvailableSlots; this wrapper only loads the current
// snapshot, so every call sees fresh bookings.
type Service struct {
	templates TemplateStore
	busy      BusyStore
	zone      *time.Location
	leadTime  time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(templates TemplateStore, busy BusyStore, zone *time.Location, leadTime time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		templates: templates,
		busy:      busy,
		zone:      zone,
		leadTime:  leadTime,
		logger:    logger,
		now:       time.Now,
	}
}

// SlotsForDoctor returns the ordered open slot start times for one doctor
// on one clinic-local calendar day.
func (s *Service) SlotsForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	tpl, err := s.templates.AvailabilityForDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if tpl == nil {
		return nil, nil
	}

	date = date.In(s.zone)
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, s.zone)
	dayEnd := dayStart.AddDate(0, 0, 1)

	busy, err := s.busy.BusyIntervalsForDay(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	return AvailableSlots(SlotInput{
		Template: *tpl,
		Date:     date,
		Busy:     busy,
		Now:      s.now().In(s.zone),
		LeadTime: s.leadTime,
	})
}

// UpdateAvailability replaces a doctor's weekly template after validation.
func (s *Service) UpdateAvailability(ctx context.Context, doctorID uuid.UUID, tpl AvailabilityTemplate) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	if err := s.templates.SaveAvailability(ctx, doctorID, tpl); err != nil {
		return fmt.Errorf("save availability: %w", err)
	}
	s.logger.Info("availability updated", "doctor_id", doctorID, "days", len(tpl.WorkingDays), "slot_minutes", tpl.SlotMinutes)
	return nil
}
