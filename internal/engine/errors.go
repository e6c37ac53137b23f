package engine

// Rejection is an expected, recoverable refusal of a requested transition.
// Code is stable and safe to show to clients.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

var (
	ErrEventFull              = &Rejection{Code: "EVENT_FULL", Message: "event is full"}
	ErrEventAlreadyStarted    = &Rejection{Code: "EVENT_ALREADY_STARTED", Message: "event has already started"}
	ErrAlreadyRegistered      = &Rejection{Code: "ALREADY_REGISTERED", Message: "you are already registered for this event"}
	ErrRegistrationNotFound   = &Rejection{Code: "REGISTRATION_NOT_FOUND", Message: "registration not found"}
	ErrUnauthorized           = &Rejection{Code: "UNAUTHORIZED", Message: "you are not allowed to perform this action"}
	ErrAttendanceWindowClosed = &Rejection{Code: "ATTENDANCE_WINDOW_CLOSED", Message: "attendance can only be recorded while the event is running"}
	ErrRegistrationClosed     = &Rejection{Code: "REGISTRATION_CLOSED", Message: "registration is closed for this event"}
	ErrInvalidTransition      = &Rejection{Code: "INVALID_TRANSITION", Message: "registration cannot change to the requested status"}
	ErrEventNotFound          = &Rejection{Code: "EVENT_NOT_FOUND", Message: "event not found"}
	ErrFeedbackNotAllowed     = &Rejection{Code: "FEEDBACK_NOT_ALLOWED", Message: "feedback is only accepted from attendees of a completed event"}
	ErrFeedbackDuplicate      = &Rejection{Code: "FEEDBACK_DUPLICATE", Message: "feedback was already submitted for this event"}
	ErrInvalidOverride        = &Rejection{Code: "INVALID_OVERRIDE", Message: "manual override requires a close date and time"}
)
