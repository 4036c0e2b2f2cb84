// Package classify decides whether an activity log entry is a citadel cap
// event and converts between the upstream date format and time.Time.
package classify

import (
	"fmt"
	"time"

	"github.com/okian/capwatch/internal/domain/model"
)

// CapSentinel is the exact activity text RuneMetrics emits for a citadel cap.
const CapSentinel = "Capped at my Clan Citadel."

// eventTimeLayout matches the upstream activity date format, e.g.
// "05-Jan-2024 14:32". The feed carries no timezone; UTC is assumed.
const eventTimeLayout = "02-Jan-2006 15:04"

// IsCapEvent reports whether the activity records a citadel cap.
func IsCapEvent(a model.Activity) bool {
	return a.Text == CapSentinel
}

// ParseEventTime parses an upstream activity date as UTC.
func ParseEventTime(date string) (time.Time, error) {
	t, err := time.ParseInLocation(eventTimeLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse activity date %q: %w", date, err)
	}
	return t, nil
}

// FormatEventTime renders a timestamp in the upstream date format. It is the
// inverse of ParseEventTime for minute-resolution UTC times.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(eventTimeLayout)
}
