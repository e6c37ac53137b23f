package engine

import (
	"fmt"
	"time"
)

// Window tells whether attendance may be recorded. Only Enabled is load-bearing;
// Reason is display copy.
type Window struct {
	Enabled bool
	Reason  string
}

const (
	clockLayout = "3:04 PM"
	dayLayout   = "Jan 2, 2006"
)

func AttendanceWindow(t Timing, now time.Time) Window {
	switch t.Phase {
	case PhaseActive:
		return Window{
			Enabled: true,
			Reason:  "Attendance is open until " + t.End.Format(clockLayout+" on "+dayLayout),
		}
	case PhaseUpcoming:
		wait := t.Start.Sub(now)
		if wait < 24*time.Hour {
			return Window{Reason: "Attendance opens in " + humanize(wait)}
		}
		return Window{Reason: "Attendance opens at " + t.Start.Format(clockLayout+" on "+dayLayout)}
	case PhaseCompleted:
		return Window{Reason: "Attendance closed at " + t.End.Format(clockLayout+" on "+dayLayout)}
	default:
		return Window{Reason: "Event schedule is incomplete"}
	}
}

// TimeRemaining renders the countdown shown on the admin dashboard.
func TimeRemaining(start, now time.Time) string {
	d := start.Sub(now)
	if d <= 0 {
		return "Active/Started"
	}
	return humanize(d) + " left"
}

func humanize(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hrs := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%d %s, %d %s", days, plural(days, "day"), hrs, plural(hrs, "hr"))
	case hrs > 0:
		return fmt.Sprintf("%d %s, %d %s", hrs, plural(hrs, "hr"), mins, plural(mins, "min"))
	default:
		return fmt.Sprintf("%d %s", mins, plural(mins, "minute"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
