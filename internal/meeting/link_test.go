package meeting

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewRoomIDFormat(t *testing.T) {
	at := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	id := newRoomID(ScheduledPrefix, at, 12345)

	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %q", id)
	}
	if parts[0] != "mm" {
		t.Fatalf("expected mm prefix, got %q", parts[0])
	}

	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		t.Fatalf("middle segment is not epoch millis: %v", err)
	}
	if millis != at.UnixMilli() {
		t.Fatalf("epoch millis mismatch: got %d want %d", millis, at.UnixMilli())
	}

	if len(parts[2]) != randomDigits {
		t.Fatalf("random tail should be %d chars, got %q", randomDigits, parts[2])
	}
	if _, err := strconv.ParseInt(parts[2], 36, 64); err != nil {
		t.Fatalf("random tail is not base36: %v", err)
	}
}

func TestNewRoomIDPrefixes(t *testing.T) {
	if !strings.HasPrefix(NewRoomID(ScheduledPrefix), "mm-") {
		t.Fatal("scheduled rooms must carry the mm- prefix")
	}
	if !strings.HasPrefix(NewRoomID(InstantPrefix), "im-") {
		t.Fatal("instant rooms must carry the im- prefix")
	}
}

func TestNewRoomIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID(InstantPrefix)
		if seen[id] {
			t.Fatalf("duplicate room id %q", id)
		}
		seen[id] = true
	}
}
