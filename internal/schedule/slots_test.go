package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = ClinicZone(330) // +05:30

func weekdayTemplate() AvailabilityTemplate {
	return AvailabilityTemplate{
		WorkingDays: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		StartTime:   "09:00",
		EndTime:     "17:00",
		SlotMinutes: 30,
	}
}

// A Tuesday in the clinic zone, with "now" far in the past relative to it.
var (
	tuesday  = time.Date(2026, time.September, 1, 0, 0, 0, 0, testZone)
	dayPrior = time.Date(2026, time.August, 31, 8, 0, 0, 0, testZone)
)

func at(day time.Time, hh, mm int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hh, mm, 0, 0, day.Location())
}

func TestAvailableSlotsFullDay(t *testing.T) {
	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)

	// 09:00 through 16:30; a 17:00 candidate would end past the window.
	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0])
	assert.Equal(t, "16:30", slots[15])
	for i := 1; i < len(slots); i++ {
		assert.Less(t, slots[i-1], slots[i], "slots must be chronological")
	}
}

func TestAvailableSlotsNonWorkingDay(t *testing.T) {
	sunday := time.Date(2026, time.September, 6, 0, 0, 0, 0, testZone)

	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     sunday,
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsExcludesBookedOverlaps(t *testing.T) {
	booked := BookingInterval(at(tuesday, 10, 0), 30)

	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Busy:     []Interval{booked},
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)

	assert.Len(t, slots, 15)
	assert.NotContains(t, slots, "10:00")
	assert.Contains(t, slots, "09:30")
	assert.Contains(t, slots, "10:30")
}

func TestAvailableSlotsBookingWithUnsetDurationBlocksThirtyMinutes(t *testing.T) {
	booked := BookingInterval(at(tuesday, 11, 0), 0) // defaults to 30

	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Busy:     []Interval{booked},
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.NotContains(t, slots, "11:00")
	assert.Contains(t, slots, "11:30")
}

func TestAvailableSlotsCrossSlotOverlap(t *testing.T) {
	// A 45-minute booking at 10:15 straddles the 10:00, 10:30 and (strictly)
	// not the 11:00 slot.
	booked := BookingInterval(at(tuesday, 10, 15), 45)

	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Busy:     []Interval{booked},
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.NotContains(t, slots, "10:00")
	assert.NotContains(t, slots, "10:30")
	assert.Contains(t, slots, "11:00")
}

func TestAvailableSlotsLeadTimeOnSameDay(t *testing.T) {
	// Now is 10:50 on the target day: 11:00 misses the 15-minute buffer,
	// 11:30 is the first bookable slot.
	now := at(tuesday, 10, 50)

	slots, err := AvailableSlots(SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Now:      now,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "11:30", slots[0])
	assert.NotContains(t, slots, "11:00")
}

func TestAvailableSlotsTrailingPartialWindowDropped(t *testing.T) {
	tpl := weekdayTemplate()
	tpl.EndTime = "17:15" // the 17:00 candidate would end 17:30; trailing 15 minutes stay unused

	slots, err := AvailableSlots(SlotInput{
		Template: tpl,
		Date:     tuesday,
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "16:30", slots[len(slots)-1])
}

func TestAvailableSlotsNoSlotCrossesClosingBoundary(t *testing.T) {
	tests := []struct {
		name string
		tpl  AvailabilityTemplate
	}{
		{"even split", AvailabilityTemplate{WorkingDays: []string{"Tuesday"}, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 30}},
		{"uneven split", AvailabilityTemplate{WorkingDays: []string{"Tuesday"}, StartTime: "09:00", EndTime: "12:10", SlotMinutes: 45}},
		{"single slot", AvailabilityTemplate{WorkingDays: []string{"Tuesday"}, StartTime: "09:00", EndTime: "09:45", SlotMinutes: 45}},
		{"window shorter than slot", AvailabilityTemplate{WorkingDays: []string{"Tuesday"}, StartTime: "09:00", EndTime: "09:20", SlotMinutes: 45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := AvailableSlots(SlotInput{
				Template: tt.tpl,
				Date:     tuesday,
				Now:      dayPrior,
				LeadTime: 15 * time.Minute,
			})
			require.NoError(t, err)

			end, err := parseClock(tt.tpl.EndTime)
			require.NoError(t, err)
			for _, s := range slots {
				start, err := parseClock(s)
				require.NoError(t, err)
				assert.LessOrEqual(t, start+tt.tpl.SlotMinutes, end, "slot %s crosses closing boundary", s)
			}
		})
	}
}

func TestAvailableSlotsInvalidDuration(t *testing.T) {
	tpl := weekdayTemplate()
	tpl.SlotMinutes = 0

	_, err := AvailableSlots(SlotInput{Template: tpl, Date: tuesday, Now: dayPrior})
	assert.ErrorIs(t, err, ErrInvalidSlotDuration)

	tpl.SlotMinutes = -15
	_, err = AvailableSlots(SlotInput{Template: tpl, Date: tuesday, Now: dayPrior})
	assert.ErrorIs(t, err, ErrInvalidSlotDuration)
}

func TestAvailableSlotsMalformedTemplate(t *testing.T) {
	tpl := weekdayTemplate()
	tpl.StartTime = "9 am"
	_, err := AvailableSlots(SlotInput{Template: tpl, Date: tuesday, Now: dayPrior})
	assert.ErrorIs(t, err, ErrInvalidClockTime)

	tpl = weekdayTemplate()
	tpl.StartTime = "17:00"
	tpl.EndTime = "09:00"
	_, err = AvailableSlots(SlotInput{Template: tpl, Date: tuesday, Now: dayPrior})
	assert.ErrorIs(t, err, ErrWindowInverted)
}

func TestAvailableSlotsDeterministic(t *testing.T) {
	in := SlotInput{
		Template: weekdayTemplate(),
		Date:     tuesday,
		Busy:     []Interval{BookingInterval(at(tuesday, 9, 30), 30)},
		Now:      dayPrior,
		LeadTime: 15 * time.Minute,
	}

	first, err := AvailableSlots(in)
	require.NoError(t, err)
	second, err := AvailableSlots(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIntervalOverlapIsStrict(t *testing.T) {
	a := Interval{Start: at(tuesday, 10, 0), End: at(tuesday, 10, 30)}
	touching := Interval{Start: at(tuesday, 10, 30), End: at(tuesday, 11, 0)}
	inside := Interval{Start: at(tuesday, 10, 10), End: at(tuesday, 10, 20)}

	assert.False(t, a.Overlaps(touching), "touching endpoints must not overlap")
	assert.True(t, a.Overlaps(inside))
	assert.True(t, inside.Overlaps(a))
}
