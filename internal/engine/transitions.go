package engine

import (
	"time"

	"github.com/google/uuid"

	"gathered/internal/model"
)

type RegistrationStatus string

const (
	Registered RegistrationStatus = "REGISTERED"
	Attended   RegistrationStatus = "ATTENDED"
	Absent     RegistrationStatus = "ABSENT"
	Cancelled  RegistrationStatus = "CANCELLED"
)

// Active statuses block a second registration by the same student.
func (s RegistrationStatus) Active() bool {
	return s == Registered || s == Attended || s == Absent
}

// HoldsSeat statuses count toward max_attendees.
func (s RegistrationStatus) HoldsSeat() bool {
	return s == Registered || s == Attended
}

// SeatStatuses is the filter storage uses for capacity counts.
var SeatStatuses = []RegistrationStatus{Registered, Attended}

// Gate is the event state the register guard is evaluated against. Count must be
// read inside the same transaction that writes the registration.
type Gate struct {
	Timing       Timing
	Override     Override
	MaxAttendees int
	Count        int
}

// CheckRegister validates the (none|CANCELLED) -> REGISTERED guard.
func CheckRegister(g Gate, now time.Time) error {
	if !g.Timing.Known() || g.Timing.Phase == PhaseCompleted {
		return ErrRegistrationClosed
	}

	override := EffectiveOverride(g.Timing, g.Override, now)
	switch override {
	case OverrideClosedManual:
		return ErrRegistrationClosed
	case OverrideOngoing:
		return ErrEventAlreadyStarted
	case OverrideFull:
		return ErrEventFull
	}

	if g.Timing.Phase == PhaseActive && override != OverrideOpenManual {
		return ErrEventAlreadyStarted
	}
	if atCapacity(g.MaxAttendees, g.Count) {
		return ErrEventFull
	}
	return nil
}

// Register creates a registration or reactivates a cancelled one in place.
// The returned value is a new struct; existing is never mutated.
func Register(g Gate, existing *model.Registration, studentID, eventID uuid.UUID, now time.Time) (*model.Registration, error) {
	if existing != nil && RegistrationStatus(existing.Status).Active() {
		return nil, ErrAlreadyRegistered
	}
	if err := CheckRegister(g, now); err != nil {
		return nil, err
	}

	if existing != nil {
		reg := *existing
		reg.Status = string(Registered)
		reg.RegisteredAt = now
		reg.CancelledAt = nil
		reg.AttendedAt = nil
		reg.AbsentMarkedAt = nil
		reg.UpdatedAt = now
		return &reg, nil
	}

	return &model.Registration{
		ID:           uuid.New(),
		StudentID:    studentID,
		EventID:      eventID,
		Status:       string(Registered),
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

// Cancel moves REGISTERED -> CANCELLED for the owning student before the event starts.
func Cancel(reg *model.Registration, studentID uuid.UUID, t Timing, now time.Time) (*model.Registration, error) {
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	if reg.StudentID != studentID {
		return nil, ErrUnauthorized
	}
	if RegistrationStatus(reg.Status) != Registered {
		return nil, ErrInvalidTransition
	}
	if !t.Known() || !now.Before(t.Start) {
		return nil, ErrEventAlreadyStarted
	}

	out := *reg
	out.Status = string(Cancelled)
	out.CancelledAt = &now
	out.AttendedAt = nil
	out.AbsentMarkedAt = nil
	out.UpdatedAt = now
	return &out, nil
}

// MarkAttendance records ATTENDED or ABSENT while the attendance window is open.
// Marking the current status again is a no-op.
func MarkAttendance(reg *model.Registration, target RegistrationStatus, t Timing, now time.Time) (*model.Registration, error) {
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	if target != Attended && target != Absent {
		return nil, ErrInvalidTransition
	}
	if !RegistrationStatus(reg.Status).Active() {
		return nil, ErrInvalidTransition
	}
	if !AttendanceWindow(t, now).Enabled {
		return nil, ErrAttendanceWindowClosed
	}

	out := *reg
	if RegistrationStatus(reg.Status) == target {
		return &out, nil
	}

	out.Status = string(target)
	out.CancelledAt = nil
	if target == Attended {
		out.AttendedAt = &now
		out.AbsentMarkedAt = nil
	} else {
		out.AbsentMarkedAt = &now
		out.AttendedAt = nil
	}
	out.UpdatedAt = now
	return &out, nil
}

// CheckOwner rejects admins acting on events they did not create.
func CheckOwner(e *model.Event, adminID uuid.UUID) error {
	if e == nil {
		return ErrEventNotFound
	}
	if e.OwnerID != adminID {
		return ErrUnauthorized
	}
	return nil
}

// CheckFeedback allows one feedback per attendee once the event is over.
func CheckFeedback(reg *model.Registration, t Timing, alreadySubmitted bool) error {
	if reg == nil || RegistrationStatus(reg.Status) != Attended || t.Phase != PhaseCompleted {
		return ErrFeedbackNotAllowed
	}
	if alreadySubmitted {
		return ErrFeedbackDuplicate
	}
	return nil
}

// RegistrationLabel is the per-registration text on a student's "my events" page.
func RegistrationLabel(reg *model.Registration, t Timing, o Override, now time.Time) string {
	switch RegistrationStatus(reg.Status) {
	case Cancelled:
		return "Cancelled"
	case Attended:
		return "Attended"
	case Absent:
		return "Absent"
	}
	switch t.Phase {
	case PhaseCompleted:
		return string(StatusCompleted)
	case PhaseActive:
		return "Ongoing"
	}
	if EffectiveOverride(t, o, now) == OverrideClosedManual {
		return string(StatusTemporarilyClosed)
	}
	return string(StatusRegistered)
}

// Stamp is the instant reg entered its current status. Reactivating a
// cancelled row moves the stamp, so notifications can tell the rounds apart.
func Stamp(reg *model.Registration) time.Time {
	var at *time.Time
	switch RegistrationStatus(reg.Status) {
	case Registered:
		return reg.RegisteredAt
	case Cancelled:
		at = reg.CancelledAt
	case Attended:
		at = reg.AttendedAt
	case Absent:
		at = reg.AbsentMarkedAt
	}
	if at == nil {
		return time.Time{}
	}
	return *at
}
