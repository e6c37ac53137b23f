package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"gathered/cmd/middleware"
	"gathered/internal/dto"
	"gathered/internal/engine"
	"gathered/internal/model"
	"gathered/internal/repo"
	"gathered/pkg/validator"
)

// ownStatuses maps event id to the caller's registration status. Admin callers
// get an empty map.
func (s *service) ownStatuses(ctx *ginext.Context, actorID uuid.UUID) (map[uuid.UUID]engine.RegistrationStatus, error) {
	own := make(map[uuid.UUID]engine.RegistrationStatus)
	if middleware.Role(ctx) != middleware.RoleStudent {
		return own, nil
	}
	regs, err := s.repo.GetRegistrationsByStudent(ctx.Request.Context(), actorID)
	if err != nil {
		return nil, err
	}
	for _, r := range regs {
		status := engine.RegistrationStatus(r.Status)
		if prev, ok := own[r.EventID]; ok && prev.Active() {
			continue
		}
		own[r.EventID] = status
	}
	return own, nil
}

// ListEvents returns events that have not completed, oldest first.
func (s *service) ListEvents(ctx *ginext.Context) {
	actorID, ok := s.actor(ctx)
	if !ok {
		return
	}

	now := s.now()
	// yesterday's events can still run past midnight
	from := s.resolver.Today(now.AddDate(0, 0, -1))
	events, err := s.repo.GetEventsFrom(ctx.Request.Context(), from)
	if err != nil {
		s.fail(ctx, err, "failed to list events")
		return
	}
	own, err := s.ownStatuses(ctx, actorID)
	if err != nil {
		s.fail(ctx, err, "failed to load own registrations")
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		snap, err := s.snapshot(ctx, &events[i], now)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count registrations for event")
			continue
		}
		if snap.Timing.Phase == engine.PhaseCompleted {
			continue
		}
		resp = append(resp, eventResponse(snap, snap.StudentStatus(own[events[i].ID], now), now))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetEvent(ctx *ginext.Context) {
	actorID, ok := s.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := s.pathID(ctx, "id")
	if !ok {
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		s.fail(ctx, err, "failed to get event")
		return
	}

	var own engine.RegistrationStatus
	if middleware.Role(ctx) == middleware.RoleStudent {
		reg, err := s.repo.GetRegistration(ctx.Request.Context(), actorID, eventID)
		switch {
		case err == nil:
			own = engine.RegistrationStatus(reg.Status)
		case !errors.Is(err, repo.ErrRegistrationNotFound):
			s.fail(ctx, err, "failed to get own registration")
			return
		}
	}

	now := s.now()
	snap, err := s.snapshot(ctx, event, now)
	if err != nil {
		s.fail(ctx, err, "failed to count registrations")
		return
	}
	dto.SuccessResponse(ctx, eventResponse(snap, snap.StudentStatus(own, now), now))
}

func (s *service) Register(ctx *ginext.Context) {
	studentID, ok := s.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := s.pathID(ctx, "id")
	if !ok {
		return
	}

	now := s.now()
	var timing engine.Timing
	reg, err := s.repo.RegisterTx(ctx.Request.Context(), eventID, studentID,
		func(ev *model.Event, existing *model.Registration, count int) (*model.Registration, error) {
			snap := s.resolver.Snapshot(ev, count, now)
			timing = snap.Timing
			return engine.Register(snap.Gate(), existing, studentID, ev.ID, now)
		})
	if err != nil {
		s.fail(ctx, err, "registration rejected")
		return
	}

	s.log.Info().
		Str("registration_id", reg.ID.String()).
		Str("event_id", eventID.String()).
		Str("student_id", studentID.String()).
		Msg("registration created successfully")

	s.notify(dto.NotifyRegistered, reg, nil, 0)
	s.scheduleReminder(reg, timing.Start, now)

	dto.SuccessCreatedResponse(ctx, registrationResponse(reg))
}

func (s *service) Cancel(ctx *ginext.Context) {
	studentID, ok := s.actor(ctx)
	if !ok {
		return
	}
	regID, ok := s.pathID(ctx, "id")
	if !ok {
		return
	}

	now := s.now()
	reg, err := s.repo.UpdateRegistrationTx(ctx.Request.Context(), regID,
		func(ev *model.Event, cur *model.Registration) (*model.Registration, error) {
			return engine.Cancel(cur, studentID, s.timing(ev, now), now)
		})
	if err != nil {
		s.fail(ctx, err, "cancellation rejected")
		return
	}

	s.log.Info().
		Str("registration_id", reg.ID.String()).
		Msg("registration cancelled")
	s.notify(dto.NotifyCancelled, reg, nil, 0)

	dto.SuccessResponse(ctx, registrationResponse(reg))
}

func (s *service) MyRegistrations(ctx *ginext.Context) {
	studentID, ok := s.actor(ctx)
	if !ok {
		return
	}

	regs, err := s.repo.GetRegistrationsByStudent(ctx.Request.Context(), studentID)
	if err != nil {
		s.fail(ctx, err, "failed to list registrations")
		return
	}

	resp := make([]dto.MyEventResponse, 0, len(regs))
	for i := range regs {
		item, ok := s.myEvent(ctx, &regs[i])
		if !ok {
			continue
		}
		resp = append(resp, item)
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) myEvent(ctx *ginext.Context, reg *model.Registration) (dto.MyEventResponse, bool) {
	event, err := s.repo.GetEventByID(ctx.Request.Context(), reg.EventID)
	if err != nil {
		if !errors.Is(err, repo.ErrEventNotFound) {
			s.log.Error().Err(err).Str("event_id", reg.EventID.String()).Msg("failed to get event for registration")
		}
		return dto.MyEventResponse{}, false
	}

	now := s.now()
	snap, err := s.snapshot(ctx, event, now)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to count registrations for event")
		return dto.MyEventResponse{}, false
	}

	own := engine.RegistrationStatus(reg.Status)
	return dto.MyEventResponse{
		Event:        eventResponse(snap, snap.StudentStatus(own, now), now),
		Registration: registrationResponse(reg),
		Label:        engine.RegistrationLabel(reg, snap.Timing, snap.Override, now),
	}, true
}

func (s *service) Dashboard(ctx *ginext.Context) {
	studentID, ok := s.actor(ctx)
	if !ok {
		return
	}

	regs, err := s.repo.GetRegistrationsByStudent(ctx.Request.Context(), studentID)
	if err != nil {
		s.fail(ctx, err, "failed to load dashboard")
		return
	}

	now := s.now()
	var resp dto.DashboardResponse
	var next *engine.Snapshot
	for i := range regs {
		switch engine.RegistrationStatus(regs[i].Status) {
		case engine.Registered:
			resp.Registered++
		case engine.Attended:
			resp.Attended++
		case engine.Absent:
			resp.Absent++
		case engine.Cancelled:
			resp.Cancelled++
			continue
		}
		if engine.RegistrationStatus(regs[i].Status) != engine.Registered {
			continue
		}

		event, err := s.repo.GetEventByID(ctx.Request.Context(), regs[i].EventID)
		if err != nil {
			continue
		}
		snap, err := s.snapshot(ctx, event, now)
		if err != nil || snap.Timing.Phase != engine.PhaseUpcoming {
			continue
		}
		if next == nil || snap.Timing.Start.Before(next.Timing.Start) {
			next = &snap
		}
	}

	if next != nil {
		ev := eventResponse(*next, next.StudentStatus(engine.Registered, now), now)
		resp.NextEvent = &ev
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) SubmitFeedback(ctx *ginext.Context) {
	studentID, ok := s.actor(ctx)
	if !ok {
		return
	}
	eventID, ok := s.pathID(ctx, "id")
	if !ok {
		return
	}

	var req dto.FeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	now := s.now()
	fb := &model.Feedback{
		ID:        uuid.New(),
		StudentID: studentID,
		EventID:   eventID,
		Rating:    req.Rating,
		Comments:  req.Comments,
	}
	err := s.repo.SubmitFeedbackTx(ctx.Request.Context(), fb,
		func(ev *model.Event, reg *model.Registration, alreadySubmitted bool) error {
			return engine.CheckFeedback(reg, s.timing(ev, now), alreadySubmitted)
		})
	if err != nil {
		s.fail(ctx, err, "feedback rejected")
		return
	}

	s.log.Info().
		Str("event_id", eventID.String()).
		Int("rating", fb.Rating).
		Msg("feedback submitted")
	dto.SuccessCreatedResponse(ctx, feedbackResponse(*fb))
}
