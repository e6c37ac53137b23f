package dto

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotifyRegistered = "registered"
	NotifyCancelled  = "cancelled"
	NotifyAttendance = "attendance"
	NotifyReminder   = "reminder"
)

// NotificationMessage is the broker payload for registration side effects.
// Stamp is the time the registration entered the status the message is about;
// a message whose stamp no longer matches the row is stale. RemindAt is set
// only for reminders.
type NotificationMessage struct {
	Kind           string     `json:"kind"`
	RegistrationID uuid.UUID  `json:"registration_id"`
	EventID        uuid.UUID  `json:"event_id"`
	StudentID      uuid.UUID  `json:"student_id"`
	Stamp          time.Time  `json:"stamp"`
	RemindAt       *time.Time `json:"remind_at,omitempty"`
}
