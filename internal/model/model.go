package model

import (
	"time"

	"github.com/google/uuid"
)

// Event dates are stored as "YYYY-MM-DD" and clock times as "HH:MM:SS" in the
// campus time zone; nil pointers are NULL columns.
type Event struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	OwnerID              uuid.UUID `db:"admin_id" json:"owner_id"`
	Title                string    `db:"title" json:"title"`
	Description          string    `db:"description" json:"description,omitempty"`
	Location             string    `db:"location" json:"location,omitempty"`
	Date                 string    `db:"date" json:"date"`
	StartTime            string    `db:"start_time" json:"start_time"`
	EndTime              *string   `db:"end_time" json:"end_time,omitempty"`
	MaxAttendees         int       `db:"max_attendees" json:"max_attendees"`
	PictureURL           string    `db:"picture_url" json:"picture_url,omitempty"`
	ManualStatusOverride string    `db:"manual_status_override" json:"manual_status_override"`
	ManualCloseDate      *string   `db:"manual_close_date" json:"manual_close_date,omitempty"`
	ManualCloseTime      *string   `db:"manual_close_time" json:"manual_close_time,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

type Registration struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	StudentID      uuid.UUID  `db:"student_id" json:"student_id"`
	EventID        uuid.UUID  `db:"event_id" json:"event_id"`
	Status         string     `db:"status" json:"status"`
	RegisteredAt   time.Time  `db:"registered_at" json:"registered_at"`
	AttendedAt     *time.Time `db:"attended_at" json:"attended_at,omitempty"`
	AbsentMarkedAt *time.Time `db:"absent_marked_at" json:"absent_marked_at,omitempty"`
	CancelledAt    *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type Feedback struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StudentID   uuid.UUID `db:"student_id" json:"student_id"`
	EventID     uuid.UUID `db:"event_id" json:"event_id"`
	Rating      int       `db:"rating" json:"rating"`
	Comments    string    `db:"comments" json:"comments,omitempty"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}

type Student struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Email string    `db:"email" json:"email"`
	CitID string    `db:"cit_id" json:"cit_id"`
}

type Admin struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	OrganizationName string    `db:"organization_name" json:"organization_name"`
}

// RosterEntry is a registration joined with the student it belongs to.
type RosterEntry struct {
	Registration
	StudentName  string `db:"name" json:"student_name"`
	StudentEmail string `db:"email" json:"student_email"`
}
