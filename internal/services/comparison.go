package services

import (
	"fmt"
	"time"
)

// Change is a period-over-period delta for one aggregate value
type Change struct {
	Value string `json:"value"` // formatted, e.g. "+50.0%"
	Type  string `json:"type"`  // positive | negative | neutral
}

// PercentChange computes the formatted delta between the current window and
// the immediately preceding window of equal length. A zero baseline with a
// nonzero current value is defined as +100%; zero over zero is 0%.
func PercentChange(current, prior int64) Change {
	if prior == 0 {
		if current > 0 {
			return Change{Value: "+100%", Type: "positive"}
		}
		return Change{Value: "0%", Type: "neutral"}
	}

	delta := (float64(current) - float64(prior)) / float64(prior) * 100
	switch {
	case delta > 0:
		return Change{Value: fmt.Sprintf("+%.1f%%", delta), Type: "positive"}
	case delta < 0:
		return Change{Value: fmt.Sprintf("%.1f%%", delta), Type: "negative"}
	default:
		return Change{Value: "0%", Type: "neutral"}
	}
}

// window is a half-open interval of client timestamps in epoch ms
type window struct {
	Start int64
	End   int64
}

// currentWindow returns [now-days, now)
func currentWindow(now time.Time, days int) window {
	return window{
		Start: now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(),
		End:   now.UnixMilli(),
	}
}

// previousWindow returns the immediately preceding window of equal length,
// [now-2*days, now-days)
func previousWindow(now time.Time, days int) window {
	return window{
		Start: now.Add(-2 * time.Duration(days) * 24 * time.Hour).UnixMilli(),
		End:   now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(),
	}
}

// onlineThreshold is how recent a user's last event must be to count as
// online. A liveness heuristic over client timestamps, not a connection
// signal.
const onlineThreshold = 5 * time.Minute
