package schedule

import (
	"fmt"
	"time"
)

// ClinicZone builds the fixed civil timezone every wall-clock computation
// runs in. The platform serves one locale; server and client local time
// are never consulted.
func ClinicZone(offsetMinutes int) *time.Location {
	sign := "+"
	mins := offsetMinutes
	if mins < 0 {
		sign = "-"
		mins = -mins
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, mins/60, mins%60)
	return time.FixedZone(name, offsetMinutes*60)
}
