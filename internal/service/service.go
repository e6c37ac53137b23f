package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"gathered/cmd/middleware"
	"gathered/internal/dto"
	"gathered/internal/engine"
	"gathered/internal/model"
	"gathered/internal/rabbit"
	"gathered/internal/repo"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	UpdateEvent(ctx *ginext.Context)
	SetOverride(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)
	ListAdminEvents(ctx *ginext.Context)
	GetRoster(ctx *ginext.Context)
	MarkAttendance(ctx *ginext.Context)
	ListFeedback(ctx *ginext.Context)

	ListEvents(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	Cancel(ctx *ginext.Context)
	MyRegistrations(ctx *ginext.Context)
	Dashboard(ctx *ginext.Context)
	SubmitFeedback(ctx *ginext.Context)
}

type service struct {
	repo         repo.Repository
	log          *zerolog.Logger
	pub          rabbit.Publisher
	resolver     *engine.Resolver
	reminderLead time.Duration
	now          func() time.Time
}

type Option func(*service)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithReminderLead sets how long before the start a reminder is delivered.
// Zero disables reminders.
func WithReminderLead(d time.Duration) Option {
	return func(s *service) { s.reminderLead = d }
}

func NewService(repo repo.Repository, logger *zerolog.Logger, pub rabbit.Publisher, resolver *engine.Resolver, opts ...Option) Service {
	s := &service{
		repo:         repo,
		log:          logger,
		pub:          pub,
		resolver:     resolver,
		reminderLead: time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) pathID(ctx *ginext.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		dto.FieldBadFormatError(ctx, name)
		return uuid.Nil, false
	}
	return id, true
}

func (s *service) actor(ctx *ginext.Context) (uuid.UUID, bool) {
	id, ok := middleware.Actor(ctx)
	if !ok {
		dto.BadResponseError(ctx, dto.Unauthorized, "Missing authenticated user")
	}
	return id, ok
}

// fail answers with the rejection carried by err, or logs it and answers 500.
func (s *service) fail(ctx *ginext.Context, err error, msg string) {
	switch {
	case errors.Is(err, repo.ErrEventNotFound):
		err = engine.ErrEventNotFound
	case errors.Is(err, repo.ErrRegistrationNotFound):
		err = engine.ErrRegistrationNotFound
	}
	if dto.RejectionError(ctx, err) {
		s.log.Info().Str("reason", err.Error()).Msg(msg)
		return
	}
	s.log.Error().Err(err).Msg(msg)
	dto.InternalServerError(ctx)
}

// snapshot loads the seat count for e and resolves it at now.
func (s *service) snapshot(ctx *ginext.Context, e *model.Event, now time.Time) (engine.Snapshot, error) {
	count, err := s.repo.CountRegistrations(ctx.Request.Context(), e.ID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return s.resolver.Snapshot(e, count, now), nil
}

func (s *service) timing(e *model.Event, now time.Time) engine.Timing {
	return s.resolver.Resolve(engine.ScheduleOf(e), now)
}

func eventResponse(snap engine.Snapshot, status engine.DisplayStatus, now time.Time) dto.EventResponse {
	e := snap.Event
	resp := dto.EventResponse{
		ID:                   e.ID,
		OwnerID:              e.OwnerID,
		Title:                e.Title,
		Description:          e.Description,
		Location:             e.Location,
		Date:                 e.Date,
		StartTime:            e.StartTime,
		EndTime:              e.EndTime,
		MaxAttendees:         e.MaxAttendees,
		PictureURL:           e.PictureURL,
		ManualStatusOverride: string(snap.Override),
		ManualCloseDate:      e.ManualCloseDate,
		ManualCloseTime:      e.ManualCloseTime,
		Phase:                string(snap.Timing.Phase),
		Status:               status.String(),
		RegistrationCount:    snap.Count,
	}
	if e.MaxAttendees > 0 {
		seats := e.MaxAttendees - snap.Count
		if seats < 0 {
			seats = 0
		}
		resp.AvailableSeats = &seats
	}
	if snap.Timing.Phase == engine.PhaseUpcoming || snap.Timing.Phase == engine.PhaseActive {
		resp.TimeRemaining = engine.TimeRemaining(snap.Timing.Start, now)
	}
	return resp
}

func registrationResponse(r *model.Registration) dto.RegistrationResponse {
	return dto.RegistrationResponse{
		ID:             r.ID,
		EventID:        r.EventID,
		StudentID:      r.StudentID,
		Status:         r.Status,
		RegisteredAt:   r.RegisteredAt,
		AttendedAt:     r.AttendedAt,
		AbsentMarkedAt: r.AbsentMarkedAt,
		CancelledAt:    r.CancelledAt,
	}
}

// notify publishes a side-effect message. Delivery failures are logged and never
// undo the committed transition.
func (s *service) notify(kind string, reg *model.Registration, remindAt *time.Time, delay time.Duration) {
	if s.pub == nil {
		return
	}
	msg := dto.NotificationMessage{
		Kind:           kind,
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		StudentID:      reg.StudentID,
		Stamp:          engine.Stamp(reg),
		RemindAt:       remindAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification")
		return
	}
	if err := s.pub.Publish(payload, delay); err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to publish notification to RabbitMQ")
	}
}

// scheduleReminder queues a reminder reminderLead before start, unless that
// instant has already passed.
func (s *service) scheduleReminder(reg *model.Registration, start, now time.Time) {
	if s.reminderLead <= 0 {
		return
	}
	remindAt := start.Add(-s.reminderLead)
	if !remindAt.After(now) {
		return
	}
	s.notify(dto.NotifyReminder, reg, &remindAt, remindAt.Sub(now))
}
