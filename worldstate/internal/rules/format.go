package rules

import (
	"fmt"
	"time"
)

// fmtUTC renders a timestamp the way notification bodies show times.
func fmtUTC(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.UTC().Format("01-02 15:04 UTC")
}

// fmtCountdown renders the remaining time until t, floored to minutes.
func fmtCountdown(t time.Time, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "expired"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
