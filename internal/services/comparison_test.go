package services

import (
	"testing"
	"time"
)

func TestPercentChange(t *testing.T) {
	cases := []struct {
		name      string
		current   int64
		prior     int64
		wantValue string
		wantType  string
	}{
		{"growth", 150, 100, "+50.0%", "positive"},
		{"decline", 50, 100, "-50.0%", "negative"},
		{"flat", 100, 100, "0%", "neutral"},
		{"zero baseline with activity", 10, 0, "+100%", "positive"},
		{"zero over zero", 0, 0, "0%", "neutral"},
		{"dropped to zero", 0, 100, "-100.0%", "negative"},
		{"fractional", 133, 100, "+33.0%", "positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PercentChange(tc.current, tc.prior)
			if got.Value != tc.wantValue {
				t.Errorf("Expected value %s, got %s", tc.wantValue, got.Value)
			}
			if got.Type != tc.wantType {
				t.Errorf("Expected type %s, got %s", tc.wantType, got.Type)
			}
		})
	}
}

func TestWindows_AdjacentAndEqualLength(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	days := 7

	cur := currentWindow(now, days)
	prev := previousWindow(now, days)

	if cur.End != now.UnixMilli() {
		t.Errorf("Expected current window to end at now, got %d", cur.End)
	}
	if prev.End != cur.Start {
		t.Errorf("Expected windows to be adjacent: prev.End=%d cur.Start=%d", prev.End, cur.Start)
	}
	if cur.End-cur.Start != prev.End-prev.Start {
		t.Error("Expected windows of equal length")
	}
	wantLen := int64(days) * 24 * time.Hour.Milliseconds()
	if cur.End-cur.Start != wantLen {
		t.Errorf("Expected window length %d ms, got %d", wantLen, cur.End-cur.Start)
	}
}

func TestFillMissingDates_ZeroFills(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	data := []map[string]interface{}{
		{"date": "2026-03-02", "events": int64(5)},
	}

	filled := fillMissingDates(data, start, 3, map[string]interface{}{"events": int64(0)})

	if len(filled) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(filled))
	}
	if filled[0]["date"] != "2026-03-01" || filled[0]["events"] != int64(0) {
		t.Errorf("Expected zero-filled first day, got %v", filled[0])
	}
	if filled[1]["events"] != int64(5) {
		t.Errorf("Expected real data preserved, got %v", filled[1])
	}
}

func TestHourBuckets_Complete(t *testing.T) {
	buckets := hourBuckets(nil)
	if len(buckets) != 24 {
		t.Fatalf("Expected 24 buckets, got %d", len(buckets))
	}
	if buckets[0]["hour"] != "00:00" || buckets[23]["hour"] != "23:00" {
		t.Errorf("Expected hour labels 00:00..23:00, got %v and %v", buckets[0]["hour"], buckets[23]["hour"])
	}
}
