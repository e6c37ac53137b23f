package engine

import (
	"strings"
	"time"
)

// DefaultDuration is the length assumed for an event stored without an end time.
const DefaultDuration = 2 * time.Hour

const (
	dateLayout = "2006-01-02"
)

var timeLayouts = []string{"15:04:05", "15:04"}

type Phase string

const (
	PhaseUpcoming  Phase = "Upcoming"
	PhaseActive    Phase = "Active"
	PhaseCompleted Phase = "Completed"
	PhaseUnknown   Phase = "Unknown"
)

// Schedule is the raw timing data of an event as it is stored.
// Empty strings mean the field is absent.
type Schedule struct {
	Date      string
	StartTime string
	EndTime   string
	CloseDate string
	CloseTime string
}

// Timing is the resolved view of a Schedule at a given instant.
// Start and End are zero when Phase is PhaseUnknown.
type Timing struct {
	Phase       Phase
	Start       time.Time
	End         time.Time
	ManualLimit *time.Time
}

func (t Timing) Known() bool {
	return t.Phase != PhaseUnknown
}

// Resolver turns stored schedules into instants in the campus time zone.
type Resolver struct {
	loc             *time.Location
	defaultDuration time.Duration
}

func NewResolver(loc *time.Location, defaultDuration time.Duration) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Resolver{loc: loc, defaultDuration: defaultDuration}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve never fails: malformed or missing date/start data yields PhaseUnknown.
func (r *Resolver) Resolve(s Schedule, now time.Time) Timing {
	start, ok := r.combine(s.Date, s.StartTime)
	if !ok {
		return Timing{Phase: PhaseUnknown}
	}

	end := start.Add(r.defaultDuration)
	if strings.TrimSpace(s.EndTime) != "" {
		e, ok := r.combine(s.Date, s.EndTime)
		if !ok {
			return Timing{Phase: PhaseUnknown}
		}
		// an end before the start means the event runs past midnight
		if e.Before(start) {
			e = e.Add(24 * time.Hour)
		}
		end = e
	}

	t := Timing{Start: start, End: end}
	if limit, ok := r.combine(s.CloseDate, s.CloseTime); ok {
		t.ManualLimit = &limit
	}

	switch {
	case !now.Before(end):
		t.Phase = PhaseCompleted
	case !now.Before(start):
		t.Phase = PhaseActive
	default:
		t.Phase = PhaseUpcoming
	}
	return t
}

func (r *Resolver) combine(date, clock string) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), r.loc)
	if err != nil {
		return time.Time{}, false
	}
	c, ok := ParseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, r.loc), true
}

// ParseClock accepts "HH:MM" and "HH:MM:SS".
func ParseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate accepts "YYYY-MM-DD".
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	return t, err == nil
}

// NormalizeClock rewrites a valid clock as "HH:MM:SS", the stored form.
func NormalizeClock(s string) (string, bool) {
	c, ok := ParseClock(s)
	if !ok {
		return "", false
	}
	return c.Format(timeLayouts[0]), true
}

// Today is the calendar date of now in the resolver's location.
func (r *Resolver) Today(now time.Time) string {
	return now.In(r.loc).Format(dateLayout)
}
