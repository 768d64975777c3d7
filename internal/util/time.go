package util

import (
	"fmt"
	"math"
	"time"
)

// FormatClock formats a playback position as m:ss, the way clip players show
// current time and duration. Negative and NaN durations render as 0:00.
// Minutes are not wrapped into hours.
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	total := int64(math.Floor(d.Seconds()))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatDuration formats milliseconds as a human-readable duration string.
// Examples: "45s", "2m 34s", "1h 23m"
func FormatDuration(ms int64) string {
	totalSeconds := ms / 1000
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes %= 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
