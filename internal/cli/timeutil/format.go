// Package timeutil formats timestamps for formsctl tables.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is used for absolute times in tables.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatTimestamp renders an RFC3339 timestamp, such as a pending
// timestamp, in local time. Unparseable input is returned as is.
func FormatTimestamp(timestamp string) string {
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}

// FormatAge renders how long ago t was, e.g. "3d 4h" or "12m". The zero
// time renders as "-".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
