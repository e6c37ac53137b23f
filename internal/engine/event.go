package engine

import (
	"time"

	"gathered/internal/model"
)

func ScheduleOf(e *model.Event) Schedule {
	s := Schedule{Date: e.Date, StartTime: e.StartTime}
	if e.EndTime != nil {
		s.EndTime = *e.EndTime
	}
	if e.ManualCloseDate != nil {
		s.CloseDate = *e.ManualCloseDate
	}
	if e.ManualCloseTime != nil {
		s.CloseTime = *e.ManualCloseTime
	}
	return s
}

// Snapshot is an event resolved at one instant, the input to every display decision.
type Snapshot struct {
	Event    *model.Event
	Timing   Timing
	Override Override
	Count    int
}

func (r *Resolver) Snapshot(e *model.Event, count int, now time.Time) Snapshot {
	return Snapshot{
		Event:    e,
		Timing:   r.Resolve(ScheduleOf(e), now),
		Override: ParseOverride(e.ManualStatusOverride),
		Count:    count,
	}
}

func (s Snapshot) Gate() Gate {
	return Gate{
		Timing:       s.Timing,
		Override:     s.Override,
		MaxAttendees: s.Event.MaxAttendees,
		Count:        s.Count,
	}
}

func (s Snapshot) Status(now time.Time) DisplayStatus {
	return ComputeStatus(s.Timing, s.Override, s.Event.MaxAttendees, s.Count, now)
}

func (s Snapshot) StudentStatus(own RegistrationStatus, now time.Time) DisplayStatus {
	return ComputeStudentStatus(s.Timing, s.Override, s.Event.MaxAttendees, s.Count, own, now)
}

// SetOverride applies an admin override to e, keeping the close fields consistent:
// OPEN_MANUAL and CLOSED_MANUAL need both, every other override clears them.
func SetOverride(e *model.Event, raw, closeDate, closeTime string) error {
	o := Override(raw)
	if !o.Valid() {
		return ErrInvalidOverride
	}
	if !o.Expiring() {
		e.ManualStatusOverride = string(o)
		e.ManualCloseDate = nil
		e.ManualCloseTime = nil
		return nil
	}

	d, okDate := ParseDate(closeDate)
	clock, okClock := NormalizeClock(closeTime)
	if !okDate || !okClock {
		return ErrInvalidOverride
	}
	date := d.Format(dateLayout)
	e.ManualStatusOverride = string(o)
	e.ManualCloseDate = &date
	e.ManualCloseTime = &clock
	return nil
}
