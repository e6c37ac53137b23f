package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"gathered/internal/dto"
	"gathered/internal/engine"
	"gathered/internal/model"
	"gathered/pkg/validator"
)

// applyEventRequest copies req onto e with clocks in stored form. The override is
// only touched when req names one.
func applyEventRequest(e *model.Event, req dto.CreateEventRequest) error {
	start, ok := engine.NormalizeClock(req.StartTime)
	if !ok {
		return fmt.Errorf("start_time")
	}
	var end *string
	if req.EndTime != "" {
		v, ok := engine.NormalizeClock(req.EndTime)
		if !ok {
			return fmt.Errorf("end_time")
		}
		end = &v
	}

	e.Title = req.Title
	e.Description = req.Description
	e.Location = req.Location
	e.Date = req.Date
	e.StartTime = start
	e.EndTime = end
	e.MaxAttendees = req.MaxAttendees
	e.PictureURL = req.PictureURL

	if req.ManualStatusOverride != "" {
		return engine.SetOverride(e, req.ManualStatusOverride, req.ManualCloseDate, req.ManualCloseTime)
	}
	if e.ManualStatusOverride == "" {
		e.ManualStatusOverride = string(engine.OverrideAuto)
	}
	return nil
}

func (s *service) bindEvent(ctx *ginext.Context) (dto.CreateEventRequest, bool) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return req, false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return req, false
	}
	return req, true
}

// ownedEvent loads the event named by the :id param and checks the caller owns it.
func (s *service) ownedEvent(ctx *ginext.Context) (*model.Event, uuid.UUID, bool) {
	adminID, ok := s.actor(ctx)
	if !ok {
		return nil, uuid.Nil, false
	}
	eventID, ok := s.pathID(ctx, "id")
	if !ok {
		return nil, uuid.Nil, false
	}
	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		s.fail(ctx, err, "failed to get event")
		return nil, uuid.Nil, false
	}
	if err := engine.CheckOwner(event, adminID); err != nil {
		s.fail(ctx, err, "event owned by another admin")
		return nil, uuid.Nil, false
	}
	return event, adminID, true
}

func (s *service) saveEvent(ctx *ginext.Context, event *model.Event, create bool) bool {
	exists, err := s.repo.EventExists(ctx.Request.Context(), event)
	if err != nil {
		s.fail(ctx, err, "failed to check duplicate event")
		return false
	}
	if exists {
		dto.ConflictError(ctx, dto.EventDuplicate, "An event with the same title, date, start time and location already exists")
		return false
	}

	if create {
		err = s.repo.CreateEvent(ctx.Request.Context(), event)
	} else {
		err = s.repo.UpdateEvent(ctx.Request.Context(), event)
	}
	if err != nil {
		s.fail(ctx, err, "failed to save event")
		return false
	}
	return true
}

func (s *service) respondEvent(ctx *ginext.Context, event *model.Event, created bool) {
	now := s.now()
	snap, err := s.snapshot(ctx, event, now)
	if err != nil {
		s.fail(ctx, err, "failed to count registrations")
		return
	}
	resp := eventResponse(snap, snap.Status(now), now)
	if created {
		dto.SuccessCreatedResponse(ctx, resp)
		return
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	adminID, ok := s.actor(ctx)
	if !ok {
		return
	}
	req, ok := s.bindEvent(ctx)
	if !ok {
		return
	}

	event := &model.Event{ID: uuid.New(), OwnerID: adminID}
	if err := applyEventRequest(event, req); err != nil {
		if !dto.RejectionError(ctx, err) {
			dto.FieldBadFormatError(ctx, err.Error())
		}
		return
	}
	if !s.saveEvent(ctx, event, true) {
		return
	}

	s.log.Info().Str("event_id", event.ID.String()).Msg("event created successfully")
	s.respondEvent(ctx, event, true)
}

func (s *service) UpdateEvent(ctx *ginext.Context) {
	event, _, ok := s.ownedEvent(ctx)
	if !ok {
		return
	}
	req, ok := s.bindEvent(ctx)
	if !ok {
		return
	}

	if err := applyEventRequest(event, req); err != nil {
		if !dto.RejectionError(ctx, err) {
			dto.FieldBadFormatError(ctx, err.Error())
		}
		return
	}
	if !s.saveEvent(ctx, event, false) {
		return
	}

	s.log.Info().Str("event_id", event.ID.String()).Msg("event updated successfully")
	s.respondEvent(ctx, event, false)
}

func (s *service) SetOverride(ctx *ginext.Context) {
	event, _, ok := s.ownedEvent(ctx)
	if !ok {
		return
	}

	var req dto.OverrideRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	if err := engine.SetOverride(event, req.Override, req.CloseDate, req.CloseTime); err != nil {
		s.fail(ctx, err, "invalid override")
		return
	}
	if err := s.repo.UpdateEvent(ctx.Request.Context(), event); err != nil {
		s.fail(ctx, err, "failed to save override")
		return
	}

	s.log.Info().
		Str("event_id", event.ID.String()).
		Str("override", event.ManualStatusOverride).
		Msg("manual status override set")
	s.respondEvent(ctx, event, false)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	event, _, ok := s.ownedEvent(ctx)
	if !ok {
		return
	}
	if err := s.repo.DeleteEvent(ctx.Request.Context(), event.ID); err != nil {
		s.fail(ctx, err, "failed to delete event")
		return
	}
	s.log.Info().Str("event_id", event.ID.String()).Msg("event deleted")
	dto.SuccessResponse(ctx, map[string]any{"id": event.ID})
}

func (s *service) ListAdminEvents(ctx *ginext.Context) {
	adminID, ok := s.actor(ctx)
	if !ok {
		return
	}

	events, err := s.repo.GetEventsByOwner(ctx.Request.Context(), adminID)
	if err != nil {
		s.fail(ctx, err, "failed to list admin events")
		return
	}

	now := s.now()
	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		snap, err := s.snapshot(ctx, &events[i], now)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count registrations for event")
			continue
		}
		resp = append(resp, eventResponse(snap, snap.Status(now), now))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetRoster(ctx *ginext.Context) {
	event, _, ok := s.ownedEvent(ctx)
	if !ok {
		return
	}

	roster, err := s.repo.GetRosterByEventID(ctx.Request.Context(), event.ID)
	if err != nil {
		s.fail(ctx, err, "failed to get roster")
		return
	}

	now := s.now()
	window := engine.AttendanceWindow(s.timing(event, now), now)
	resp := dto.RosterResponse{
		EventID:       event.ID,
		Window:        dto.WindowResponse{Enabled: window.Enabled, Reason: window.Reason},
		Registrations: make([]dto.RosterEntry, 0, len(roster)),
	}
	for i := range roster {
		resp.Registrations = append(resp.Registrations, dto.RosterEntry{
			RegistrationResponse: registrationResponse(&roster[i].Registration),
			StudentName:          roster[i].StudentName,
			StudentEmail:         roster[i].StudentEmail,
		})
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) MarkAttendance(ctx *ginext.Context) {
	adminID, ok := s.actor(ctx)
	if !ok {
		return
	}
	regID, ok := s.pathID(ctx, "id")
	if !ok {
		return
	}

	var req dto.AttendanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	now := s.now()
	changed := false
	reg, err := s.repo.UpdateRegistrationTx(ctx.Request.Context(), regID, func(ev *model.Event, cur *model.Registration) (*model.Registration, error) {
		if err := engine.CheckOwner(ev, adminID); err != nil {
			return nil, err
		}
		next, err := engine.MarkAttendance(cur, engine.RegistrationStatus(req.Status), s.timing(ev, now), now)
		if err != nil {
			return nil, err
		}
		changed = next.Status != cur.Status
		return next, nil
	})
	if err != nil {
		s.fail(ctx, err, "failed to mark attendance")
		return
	}

	s.log.Info().
		Str("registration_id", reg.ID.String()).
		Str("status", reg.Status).
		Msg("attendance recorded")
	if changed {
		s.notify(dto.NotifyAttendance, reg, nil, 0)
	}
	dto.SuccessResponse(ctx, registrationResponse(reg))
}

func (s *service) ListFeedback(ctx *ginext.Context) {
	event, _, ok := s.ownedEvent(ctx)
	if !ok {
		return
	}

	list, err := s.repo.GetFeedbackByEventID(ctx.Request.Context(), event.ID)
	if err != nil {
		s.fail(ctx, err, "failed to list feedback")
		return
	}

	resp := make([]dto.FeedbackResponse, 0, len(list))
	for _, f := range list {
		resp = append(resp, feedbackResponse(f))
	}
	dto.SuccessResponse(ctx, resp)
}

func feedbackResponse(f model.Feedback) dto.FeedbackResponse {
	return dto.FeedbackResponse{
		ID:          f.ID,
		EventID:     f.EventID,
		StudentID:   f.StudentID,
		Rating:      f.Rating,
		Comments:    f.Comments,
		SubmittedAt: f.SubmittedAt,
	}
}
