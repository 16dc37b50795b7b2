package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSlotDuration = errors.New("slot duration must be a positive number of minutes")
	ErrInvalidClockTime    = errors.New("clock time must be HH:MM")
	ErrWindowInverted      = errors.New("availability start must be before end")
)

// AvailabilityTemplate is a doctor's recurring weekly working pattern.
// Times are clinic-local wall clock, no per-doctor timezones.
type AvailabilityTemplate struct {
	WorkingDays []string // weekday names, e.g. "Monday"
	StartTime   string   // HH:MM
	EndTime     string   // HH:MM
	SlotMinutes int      // consultation duration
}

// WorksOn reports whether the template covers the given weekday.
func (t AvailabilityTemplate) WorksOn(day time.Weekday) bool {
	for _, d := range t.WorkingDays {
		if strings.EqualFold(d, day.String()) {
			return true
		}
	}
	return false
}

// Validate checks the template is usable for slot generation.
func (t AvailabilityTemplate) Validate() error {
	if t.SlotMinutes <= 0 {
		return ErrInvalidSlotDuration
	}
	start, err := parseClock(t.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock(t.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return ErrWindowInverted
	}
	return nil
}

// parseClock converts "HH:MM" to minutes from midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Interval is a half-open busy window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is strict interval intersection: touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}
