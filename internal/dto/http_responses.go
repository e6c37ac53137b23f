package dto

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"gathered/internal/engine"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	Unauthorized       = "UNAUTHORIZED"
	EventDuplicate     = "EVENT_DUPLICATE"
	InternalError      = "Service is currently unavailable. Please try again later."
)

type CreateEventRequest struct {
	Title                string `json:"title" validate:"required,min=3,max=200"`
	Description          string `json:"description" validate:"max=5000"`
	Location             string `json:"location" validate:"max=255"`
	Date                 string `json:"date" validate:"required,ymd"`
	StartTime            string `json:"start_time" validate:"required,hhmm"`
	EndTime              string `json:"end_time" validate:"omitempty,hhmm"`
	MaxAttendees         int    `json:"max_attendees" validate:"gte=0"`
	PictureURL           string `json:"picture_url" validate:"omitempty,url"`
	ManualStatusOverride string `json:"manual_status_override" validate:"omitempty,override"`
	ManualCloseDate      string `json:"manual_close_date" validate:"omitempty,ymd"`
	ManualCloseTime      string `json:"manual_close_time" validate:"omitempty,hhmm"`
}

type OverrideRequest struct {
	Override  string `json:"manual_status_override" validate:"required,override"`
	CloseDate string `json:"manual_close_date" validate:"omitempty,ymd"`
	CloseTime string `json:"manual_close_time" validate:"omitempty,hhmm"`
}

type AttendanceRequest struct {
	Status string `json:"status" validate:"required,oneof=ATTENDED ABSENT"`
}

type FeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comments string `json:"comments" validate:"max=2000"`
}

type EventResponse struct {
	ID                   uuid.UUID `json:"id"`
	OwnerID              uuid.UUID `json:"owner_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Location             string    `json:"location,omitempty"`
	Date                 string    `json:"date"`
	StartTime            string    `json:"start_time"`
	EndTime              *string   `json:"end_time,omitempty"`
	MaxAttendees         int       `json:"max_attendees"`
	PictureURL           string    `json:"picture_url,omitempty"`
	ManualStatusOverride string    `json:"manual_status_override"`
	ManualCloseDate      *string   `json:"manual_close_date,omitempty"`
	ManualCloseTime      *string   `json:"manual_close_time,omitempty"`
	Phase                string    `json:"phase"`
	Status               string    `json:"status"`
	RegistrationCount    int       `json:"registration_count"`
	AvailableSeats       *int      `json:"available_seats,omitempty"`
	TimeRemaining        string    `json:"time_remaining,omitempty"`
}

type RegistrationResponse struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	StudentID      uuid.UUID  `json:"student_id"`
	Status         string     `json:"status"`
	RegisteredAt   time.Time  `json:"registered_at"`
	AttendedAt     *time.Time `json:"attended_at,omitempty"`
	AbsentMarkedAt *time.Time `json:"absent_marked_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

type MyEventResponse struct {
	Event        EventResponse        `json:"event"`
	Registration RegistrationResponse `json:"registration"`
	Label        string               `json:"label"`
}

type WindowResponse struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

type RosterEntry struct {
	RegistrationResponse
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

type RosterResponse struct {
	EventID       uuid.UUID      `json:"event_id"`
	Window        WindowResponse `json:"attendance_window"`
	Registrations []RosterEntry  `json:"registrations"`
}

type DashboardResponse struct {
	Registered int            `json:"registered"`
	Attended   int            `json:"attended"`
	Absent     int            `json:"absent"`
	Cancelled  int            `json:"cancelled"`
	NextEvent  *EventResponse `json:"next_event,omitempty"`
}

type FeedbackResponse struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	StudentID   uuid.UUID `json:"student_id"`
	Rating      int       `json:"rating"`
	Comments    string    `json:"comments,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

var rejectionStatus = map[string]int{
	engine.ErrEventNotFound.Code:          http.StatusNotFound,
	engine.ErrRegistrationNotFound.Code:   http.StatusNotFound,
	engine.ErrUnauthorized.Code:           http.StatusForbidden,
	engine.ErrAlreadyRegistered.Code:      http.StatusConflict,
	engine.ErrFeedbackDuplicate.Code:      http.StatusConflict,
	engine.ErrEventFull.Code:              http.StatusConflict,
	engine.ErrAttendanceWindowClosed.Code: http.StatusUnprocessableEntity,
}

func errorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func ConflictError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusConflict, code, desc)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

// RejectionError renders engine rejections with their stable code. It reports
// false for any other error so the caller can log it and answer 500.
func RejectionError(c *ginext.Context, err error) bool {
	var rej *engine.Rejection
	if !errors.As(err, &rej) {
		return false
	}
	status, ok := rejectionStatus[rej.Code]
	if !ok {
		status = http.StatusBadRequest
	}
	errorResponse(c, status, rej.Code, rej.Message)
	return true
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
