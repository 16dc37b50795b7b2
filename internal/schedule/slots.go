package schedule

import (
	"time"
)

// DefaultBookingMinutes is assumed for stored bookings with no duration.
const DefaultBookingMinutes = 30

// SlotInput is everything AvailableSlots needs to decide a day's openings.
// Busy must hold the doctor's non-cancelled bookings for the target day.
type SlotInput struct {
	Template AvailabilityTemplate
	Date     time.Time     // any instant on the target calendar day, clinic zone
	Busy     []Interval    // existing non-cancelled bookings
	Now      time.Time     // current instant
	LeadTime time.Duration // minimum gap before a slot is bookable
}

// AvailableSlots computes the ordered bookable start times ("HH:MM") for one
// doctor and one calendar day. Pure: same snapshot in, same slots out. It
// does not close the window between two patients computing the same free
// slot and both booking it; creation trusts the chosen slot as supplied.
//
// A candidate survives when:
//   - the day is a working day,
//   - the whole slot fits before the template's end time (a trailing
//     partial window is dropped, not truncated),
//   - its start is at least LeadTime after Now,
//   - it strictly overlaps no busy interval.
func AvailableSlots(in SlotInput) ([]string, error) {
	tpl := in.Template
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	loc := in.Date.Location()
	if !tpl.WorksOn(in.Date.In(loc).Weekday()) {
		return nil, nil
	}

	startMin, err := parseClock(tpl.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := parseClock(tpl.EndTime)
	if err != nil {
		return nil, err
	}

	y, m, d := in.Date.In(loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	earliest := in.Now.Add(in.LeadTime)

	var slots []string
	for cur := startMin; cur+tpl.SlotMinutes <= endMin; cur += tpl.SlotMinutes {
		slotStart := midnight.Add(time.Duration(cur) * time.Minute)
		slot := Interval{
			Start: slotStart,
			End:   slotStart.Add(time.Duration(tpl.SlotMinutes) * time.Minute),
		}

		if slot.Start.Before(earliest) {
			continue
		}

		if overlapsAny(slot, in.Busy) {
			continue
		}

		slots = append(slots, formatClock(cur))
	}

	return slots, nil
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}

// BookingInterval derives the busy window of a stored booking from its
// start and duration, falling back to DefaultBookingMinutes.
func BookingInterval(start time.Time, durationMinutes int) Interval {
	if durationMinutes <= 0 {
		durationMinutes = DefaultBookingMinutes
	}
	return Interval{
		Start: start,
		End:   start.Add(time.Duration(durationMinutes) * time.Minute),
	}
}
