// Package meeting generates the opaque room identifiers stored on
// appointments and instant requests. The video provider provisions rooms
// from these identifiers; nothing here ever parses one back apart.
package meeting

import (
	"math/rand"
	"strconv"
	"time"
)

const (
	// ScheduledPrefix marks rooms for booked appointments.
	ScheduledPrefix = "mm"
	// InstantPrefix marks rooms for instant consultations.
	InstantPrefix = "im"

	randomDigits = 8
)

// NewRoomID returns "<prefix>-<epoch-millis>-<random base36>".
func NewRoomID(prefix string) string {
	return newRoomID(prefix, time.Now(), rand.Int63())
}

func newRoomID(prefix string, at time.Time, seed int64) string {
	millis := strconv.FormatInt(at.UnixMilli(), 10)

	// base36 tail, fixed width
	tail := strconv.FormatInt(seed, 36)
	if len(tail) > randomDigits {
		tail = tail[:randomDigits]
	}
	for len(tail) < randomDigits {
		tail = "0" + tail
	}

	return prefix + "-" + millis + "-" + tail
}
