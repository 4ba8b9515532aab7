package services

import (
	"testing"
	"time"
)

// The online cutoff is what the realtime pipeline's second $match filters
// lastActivity against: activity at or after it counts as online.
func TestRealtimeBounds_FiveMinuteBoundary(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	lastHour, onlineSince := realtimeBounds(now)

	if lastHour != now.Add(-1*time.Hour).UnixMilli() {
		t.Errorf("Expected bucket window to open one hour back, got %d", lastHour)
	}

	cases := []struct {
		name   string
		ago    time.Duration
		online bool
	}{
		{"4 minutes ago", 4 * time.Minute, true},
		{"exactly 5 minutes ago", 5 * time.Minute, true},
		{"6 minutes ago", 6 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lastActivity := now.Add(-tc.ago).UnixMilli()
			if got := lastActivity >= onlineSince; got != tc.online {
				t.Errorf("Activity %v ago: online = %v, want %v", tc.ago, got, tc.online)
			}
		})
	}
}
