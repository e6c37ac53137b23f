package engine

import (
	"strings"
	"time"
)

type Override string

const (
	OverrideAuto         Override = "AUTO"
	OverrideOpenManual   Override = "OPEN_MANUAL"
	OverrideClosedManual Override = "CLOSED_MANUAL"
	OverrideOngoing      Override = "ONGOING"
	OverrideFull         Override = "FULL"
)

// ParseOverride maps unknown or empty values to OverrideAuto.
func ParseOverride(s string) Override {
	o := Override(strings.ToUpper(strings.TrimSpace(s)))
	if o.Valid() {
		return o
	}
	return OverrideAuto
}

func (o Override) Valid() bool {
	switch o {
	case OverrideAuto, OverrideOpenManual, OverrideClosedManual, OverrideOngoing, OverrideFull:
		return true
	}
	return false
}

// Expiring reports whether the override carries a close instant.
func (o Override) Expiring() bool {
	return o == OverrideOpenManual || o == OverrideClosedManual
}

type StatusKind string

const (
	StatusAvailable          StatusKind = "Available"
	StatusFull               StatusKind = "Full"
	StatusRegistrationClosed StatusKind = "Registration Closed"
	StatusClosedOngoing      StatusKind = "Closed – Event Ongoing"
	StatusTemporarilyClosed  StatusKind = "Temporarily Closed"
	StatusCompleted          StatusKind = "Completed"
	StatusRegistered         StatusKind = "Registered"
)

const displayLayout = "Jan 2, 2006 3:04 PM"

// DisplayStatus is what students and admins see for an event.
// Until is set only for StatusTemporarilyClosed.
type DisplayStatus struct {
	Kind  StatusKind
	Until *time.Time
}

func (d DisplayStatus) String() string {
	if d.Kind == StatusTemporarilyClosed && d.Until != nil {
		return string(d.Kind) + " (until " + d.Until.Format(displayLayout) + ")"
	}
	return string(d.Kind)
}

// EffectiveOverride applies lazy expiry: an OPEN_MANUAL or CLOSED_MANUAL override
// without a limit, or whose limit has passed, behaves as AUTO.
func EffectiveOverride(t Timing, o Override, now time.Time) Override {
	if !o.Valid() {
		return OverrideAuto
	}
	if !o.Expiring() {
		return o
	}
	if t.ManualLimit == nil || !now.Before(*t.ManualLimit) {
		return OverrideAuto
	}
	return o
}

func atCapacity(maxAttendees, count int) bool {
	return maxAttendees > 0 && count >= maxAttendees
}

// ComputeStatus returns the aggregate registration status of an event.
// A live OPEN_MANUAL shows Available even at capacity; the register transition
// still enforces capacity.
func ComputeStatus(t Timing, o Override, maxAttendees, count int, now time.Time) DisplayStatus {
	if !t.Known() {
		return DisplayStatus{Kind: StatusRegistrationClosed}
	}

	switch EffectiveOverride(t, o, now) {
	case OverrideOpenManual:
		return DisplayStatus{Kind: StatusAvailable}
	case OverrideClosedManual:
		until := *t.ManualLimit
		return DisplayStatus{Kind: StatusTemporarilyClosed, Until: &until}
	case OverrideFull:
		return DisplayStatus{Kind: StatusFull}
	case OverrideOngoing:
		return DisplayStatus{Kind: StatusClosedOngoing}
	}

	switch t.Phase {
	case PhaseCompleted:
		return DisplayStatus{Kind: StatusRegistrationClosed}
	case PhaseActive:
		if atCapacity(maxAttendees, count) {
			return DisplayStatus{Kind: StatusFull}
		}
		return DisplayStatus{Kind: StatusClosedOngoing}
	default:
		if atCapacity(maxAttendees, count) {
			return DisplayStatus{Kind: StatusFull}
		}
		return DisplayStatus{Kind: StatusAvailable}
	}
}

// ComputeStudentStatus is ComputeStatus seen by one student. own is the status of
// the student's registration for the event, empty when there is none.
func ComputeStudentStatus(t Timing, o Override, maxAttendees, count int, own RegistrationStatus, now time.Time) DisplayStatus {
	if own.Active() {
		return DisplayStatus{Kind: StatusRegistered}
	}
	return ComputeStatus(t, o, maxAttendees, count, now)
}
