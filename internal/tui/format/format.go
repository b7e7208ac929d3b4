// Package format renders ages, deadlines and sizes for terminal views.
package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime formats a time as a relative duration (e.g., "2h ago", "3d ago").
func RelativeTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	case diff < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(diff.Hours()/24/7))
	}
	return t.Format("2006-01-02")
}

// Age renders how long ago an entry was fetched, to the second.
func Age(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Round(time.Second).String()
}

// Until renders the time left before a deadline, or "expired".
func Until(at, now time.Time) string {
	d := at.Sub(now).Round(time.Second)
	if d <= 0 {
		return "expired"
	}
	return "in " + d.String()
}

// Size renders a byte count in binary units, e.g. "1.5 KiB".
func Size(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
