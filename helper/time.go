package helper

import (
	"fmt"
	"time"
)

// FormatDuration renders a duration with one decimal in its largest unit.
func FormatDuration(d time.Duration) string {
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d.Seconds() >= 1 {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d >= time.Millisecond {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}
