package service_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gathered/cmd/middleware"
	"gathered/internal/api/api"
	"gathered/internal/dto"
	"gathered/internal/engine"
	"gathered/internal/model"
	"gathered/internal/repo"
	"gathered/internal/service"
)

const secret = "test-secret"

type published struct {
	msg   dto.NotificationMessage
	delay time.Duration
}

type recorder struct {
	mu   sync.Mutex
	sent []published
}

func (r *recorder) Publish(body []byte, delay time.Duration) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{msg: msg, delay: delay})
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, p := range r.sent {
		out = append(out, p.msg.Kind)
	}
	return out
}

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	t      *testing.T
	repo   *repo.Memory
	pub    *recorder
	now    time.Time
	router http.Handler
	admin  string
	ada    string
	bob    string
	adaID  uuid.UUID
	bobID  uuid.UUID
}

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func token(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(secret, id, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:     t,
		repo:  repo.NewMemoryRepository(),
		pub:   &recorder{},
		now:   at("2025-06-01 08:00"),
		adaID: uuid.New(),
		bobID: uuid.New(),
	}
	f.repo.AddStudent(model.Student{ID: f.adaID, Name: "Ada", Email: "ada@campus.edu", CitID: "21-0001"})
	f.repo.AddStudent(model.Student{ID: f.bobID, Name: "Bob", Email: "bob@campus.edu", CitID: "21-0002"})

	log := zerolog.Nop()
	svc := service.NewService(f.repo, &log, f.pub,
		engine.NewResolver(time.UTC, engine.DefaultDuration),
		service.WithClock(func() time.Time { return f.now }),
		service.WithReminderLead(time.Hour),
	)
	f.router = api.NewRouters(&api.Routers{Service: svc, JWTSecret: secret, GinMode: "test"})

	f.admin = token(t, uuid.New(), middleware.RoleAdmin)
	f.ada = token(t, f.adaID, middleware.RoleStudent)
	f.bob = token(t, f.bobID, middleware.RoleStudent)
	return f
}

func (f *fixture) do(method, path, tok string, body any) (int, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func meetup(maxAttendees int) map[string]any {
	return map[string]any{
		"title":         "Go Meetup",
		"location":      "Hall A",
		"date":          "2025-06-01",
		"start_time":    "10:00",
		"end_time":      "12:00",
		"max_attendees": maxAttendees,
	}
}

func (f *fixture) createEvent(body map[string]any) dto.EventResponse {
	f.t.Helper()
	code, env := f.do(http.MethodPost, "/v1/admin/events", f.admin, body)
	require.Equal(f.t, http.StatusCreated, code, env.Error)
	return decode[dto.EventResponse](f.t, env)
}

func (f *fixture) register(tok string, eventID uuid.UUID) (int, envelope) {
	return f.do(http.MethodPost, "/v1/events/"+eventID.String()+"/register", tok, nil)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthGuards(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(http.MethodGet, "/v1/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, dto.Unauthorized, env.Error.Code)

	code, _ = f.do(http.MethodGet, "/v1/events", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/v1/admin/events", f.ada, meetup(0))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodGet, "/v1/me/dashboard", f.admin, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)

	ev := f.createEvent(meetup(2))
	assert.Equal(t, "10:00:00", ev.StartTime)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, "12:00:00", *ev.EndTime)
	assert.Equal(t, "AUTO", ev.ManualStatusOverride)
	assert.Equal(t, "Upcoming", ev.Phase)
	assert.Equal(t, "Available", ev.Status)
	assert.Equal(t, "2 hrs, 0 mins left", ev.TimeRemaining)
	require.NotNil(t, ev.AvailableSeats)
	assert.Equal(t, 2, *ev.AvailableSeats)

	code, env := f.do(http.MethodPost, "/v1/admin/events", f.admin, meetup(5))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, dto.EventDuplicate, env.Error.Code)

	bad := meetup(0)
	bad["date"] = "06/01/2025"
	code, env = f.do(http.MethodPost, "/v1/admin/events", f.admin, bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.FieldIncorrect, env.Error.Code)

	code, env = f.do(http.MethodGet, "/v1/events", f.ada, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]dto.EventResponse](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, ev.ID, list[0].ID)
}

func TestCreateEventWithoutEndTimeUsesDefaultDuration(t *testing.T) {
	f := newFixture(t)
	body := meetup(0)
	delete(body, "end_time")
	ev := f.createEvent(body)

	f.now = at("2025-06-01 11:59")
	code, env := f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.ada, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Active", decode[dto.EventResponse](t, env).Phase)

	f.now = at("2025-06-01 12:00")
	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.ada, nil)
	assert.Equal(t, "Completed", decode[dto.EventResponse](t, env).Phase)
}

func TestRegisterCancelReRegister(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(meetup(0))

	code, env := f.register(f.ada, ev.ID)
	require.Equal(t, http.StatusCreated, code, env.Error)
	reg := decode[dto.RegistrationResponse](t, env)
	assert.Equal(t, "REGISTERED", reg.Status)

	assert.Equal(t, []string{dto.NotifyRegistered, dto.NotifyReminder}, f.pub.kinds())
	assert.Equal(t, time.Hour, f.pub.sent[1].delay)
	require.NotNil(t, f.pub.sent[1].msg.RemindAt)
	assert.True(t, at("2025-06-01 09:00").Equal(*f.pub.sent[1].msg.RemindAt))
	assert.Nil(t, f.pub.sent[0].msg.RemindAt)
	assert.True(t, reg.RegisteredAt.Equal(f.pub.sent[0].msg.Stamp))
	assert.True(t, reg.RegisteredAt.Equal(f.pub.sent[1].msg.Stamp))

	code, env = f.register(f.ada, ev.ID)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, engine.ErrAlreadyRegistered.Code, env.Error.Code)

	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.ada, nil)
	got := decode[dto.EventResponse](t, env)
	assert.Equal(t, "Registered", got.Status)
	assert.Equal(t, 1, got.RegistrationCount)

	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.bob, nil)
	assert.Equal(t, "Available", decode[dto.EventResponse](t, env).Status)

	code, env = f.do(http.MethodPost, "/v1/registrations/"+reg.ID.String()+"/cancel", f.bob, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, engine.ErrUnauthorized.Code, env.Error.Code)

	code, env = f.do(http.MethodPost, "/v1/registrations/"+reg.ID.String()+"/cancel", f.ada, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", decode[dto.RegistrationResponse](t, env).Status)

	code, env = f.do(http.MethodPost, "/v1/registrations/"+reg.ID.String()+"/cancel", f.ada, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrInvalidTransition.Code, env.Error.Code)

	code, env = f.register(f.ada, ev.ID)
	require.Equal(t, http.StatusCreated, code)
	again := decode[dto.RegistrationResponse](t, env)
	assert.Equal(t, reg.ID, again.ID)
	assert.Nil(t, again.CancelledAt)
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(meetup(1))

	code, _ := f.register(f.ada, ev.ID)
	require.Equal(t, http.StatusCreated, code)

	code, env := f.register(f.bob, ev.ID)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, engine.ErrEventFull.Code, env.Error.Code)

	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.bob, nil)
	assert.Equal(t, "Full", decode[dto.EventResponse](t, env).Status)

	code, env = f.register(f.bob, uuid.New())
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, engine.ErrEventNotFound.Code, env.Error.Code)

	code, env = f.do(http.MethodPost, "/v1/events/not-a-uuid/register", f.bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.FieldBadFormat, env.Error.Code)

	open := f.createEvent(map[string]any{"title": "Late Talk", "date": "2025-06-01", "start_time": "09:00"})
	f.now = at("2025-06-01 09:30")
	code, env = f.register(f.bob, open.ID)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrEventAlreadyStarted.Code, env.Error.Code)
}

func TestOverride(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(meetup(0))
	path := "/v1/admin/events/" + ev.ID.String() + "/override"

	code, env := f.do(http.MethodPut, path, f.admin, map[string]any{
		"manual_status_override": "CLOSED_MANUAL",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrInvalidOverride.Code, env.Error.Code)

	code, env = f.do(http.MethodPut, path, f.admin, map[string]any{
		"manual_status_override": "SOMETIMES",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.FieldIncorrect, env.Error.Code)

	other := token(t, uuid.New(), middleware.RoleAdmin)
	code, env = f.do(http.MethodPut, path, other, map[string]any{"manual_status_override": "FULL"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, engine.ErrUnauthorized.Code, env.Error.Code)

	code, env = f.do(http.MethodPut, path, f.admin, map[string]any{
		"manual_status_override": "CLOSED_MANUAL",
		"manual_close_date":      "2025-06-01",
		"manual_close_time":      "09:00",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	got := decode[dto.EventResponse](t, env)
	assert.Equal(t, "Temporarily Closed (until Jun 1, 2025 9:00 AM)", got.Status)
	require.NotNil(t, got.ManualCloseTime)
	assert.Equal(t, "09:00:00", *got.ManualCloseTime)

	code, env = f.register(f.ada, ev.ID)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrRegistrationClosed.Code, env.Error.Code)

	f.now = at("2025-06-01 09:00")
	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.ada, nil)
	assert.Equal(t, "Available", decode[dto.EventResponse](t, env).Status)

	code, _ = f.register(f.ada, ev.ID)
	assert.Equal(t, http.StatusCreated, code)

	code, env = f.do(http.MethodPut, path, f.admin, map[string]any{
		"manual_status_override": "FULL",
		"manual_close_date":      "2025-06-01",
		"manual_close_time":      "09:00",
	})
	require.Equal(t, http.StatusOK, code)
	got = decode[dto.EventResponse](t, env)
	assert.Equal(t, "Full", got.Status)
	assert.Nil(t, got.ManualCloseDate)
}

func TestAttendanceAndFeedback(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(meetup(0))

	_, env := f.register(f.ada, ev.ID)
	adaReg := decode[dto.RegistrationResponse](t, env)
	_, env = f.register(f.bob, ev.ID)
	bobReg := decode[dto.RegistrationResponse](t, env)

	mark := func(regID uuid.UUID, status string) (int, envelope) {
		return f.do(http.MethodPost, "/v1/admin/registrations/"+regID.String()+"/attendance", f.admin,
			map[string]any{"status": status})
	}

	code, env := mark(adaReg.ID, "ATTENDED")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, engine.ErrAttendanceWindowClosed.Code, env.Error.Code)

	code, env = f.do(http.MethodGet, "/v1/admin/events/"+ev.ID.String()+"/attendance", f.admin, nil)
	require.Equal(t, http.StatusOK, code)
	roster := decode[dto.RosterResponse](t, env)
	assert.False(t, roster.Window.Enabled)
	assert.Equal(t, "Attendance opens in 2 hrs, 0 mins", roster.Window.Reason)
	require.Len(t, roster.Registrations, 2)
	assert.Equal(t, "Ada", roster.Registrations[0].StudentName)

	f.now = at("2025-06-01 10:30")

	code, env = f.do(http.MethodPost, "/v1/registrations/"+bobReg.ID.String()+"/cancel", f.bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrEventAlreadyStarted.Code, env.Error.Code)

	code, _ = mark(adaReg.ID, "ATTENDED")
	require.Equal(t, http.StatusOK, code)
	code, _ = mark(bobReg.ID, "ABSENT")
	require.Equal(t, http.StatusOK, code)

	code, env = mark(adaReg.ID, "CANCELLED")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.FieldIncorrect, env.Error.Code)

	other := token(t, uuid.New(), middleware.RoleAdmin)
	code, _ = f.do(http.MethodPost, "/v1/admin/registrations/"+adaReg.ID.String()+"/attendance", other,
		map[string]any{"status": "ABSENT"})
	assert.Equal(t, http.StatusForbidden, code)

	_, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.admin, nil)
	assert.Equal(t, 1, decode[dto.EventResponse](t, env).RegistrationCount, "absent students free their seat")

	feedback := func(tok string) (int, envelope) {
		return f.do(http.MethodPost, "/v1/events/"+ev.ID.String()+"/feedback", tok,
			map[string]any{"rating": 5, "comments": "great"})
	}

	code, env = feedback(f.ada)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrFeedbackNotAllowed.Code, env.Error.Code)

	f.now = at("2025-06-01 12:30")

	code, env = feedback(f.ada)
	require.Equal(t, http.StatusCreated, code, env.Error)
	code, env = feedback(f.ada)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, engine.ErrFeedbackDuplicate.Code, env.Error.Code)

	code, env = feedback(f.bob)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, engine.ErrFeedbackNotAllowed.Code, env.Error.Code)

	code, env = f.do(http.MethodGet, "/v1/admin/events/"+ev.ID.String()+"/feedback", f.admin, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]dto.FeedbackResponse](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Rating)

	assert.Contains(t, f.pub.kinds(), dto.NotifyAttendance)
}

func TestMyRegistrationsAndDashboard(t *testing.T) {
	f := newFixture(t)
	first := f.createEvent(meetup(0))
	later := meetup(0)
	later["title"] = "Rust Night"
	later["date"] = "2025-06-03"
	second := f.createEvent(later)

	_, env := f.register(f.ada, first.ID)
	firstReg := decode[dto.RegistrationResponse](t, env)
	code, _ := f.register(f.ada, second.ID)
	require.Equal(t, http.StatusCreated, code)

	code, env = f.do(http.MethodGet, "/v1/me/dashboard", f.ada, nil)
	require.Equal(t, http.StatusOK, code)
	dash := decode[dto.DashboardResponse](t, env)
	assert.Equal(t, 2, dash.Registered)
	require.NotNil(t, dash.NextEvent)
	assert.Equal(t, first.ID, dash.NextEvent.ID)

	f.now = at("2025-06-01 10:30")
	code, _ = f.do(http.MethodPost, "/v1/admin/registrations/"+firstReg.ID.String()+"/attendance", f.admin,
		map[string]any{"status": "ATTENDED"})
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(http.MethodGet, "/v1/me/registrations", f.ada, nil)
	require.Equal(t, http.StatusOK, code)
	mine := decode[[]dto.MyEventResponse](t, env)
	require.Len(t, mine, 2)
	labels := map[uuid.UUID]string{}
	for _, m := range mine {
		labels[m.Event.ID] = m.Label
	}
	assert.Equal(t, "Attended", labels[first.ID])
	assert.Equal(t, "Registered", labels[second.ID])

	_, env = f.do(http.MethodGet, "/v1/me/dashboard", f.ada, nil)
	dash = decode[dto.DashboardResponse](t, env)
	assert.Equal(t, 1, dash.Registered)
	assert.Equal(t, 1, dash.Attended)
	require.NotNil(t, dash.NextEvent)
	assert.Equal(t, second.ID, dash.NextEvent.ID)
}

func TestAdminEventsAndDelete(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(meetup(10))
	code, _ := f.register(f.ada, ev.ID)
	require.Equal(t, http.StatusCreated, code)

	code, env := f.do(http.MethodGet, "/v1/admin/events", f.admin, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]dto.EventResponse](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].RegistrationCount)
	require.NotNil(t, list[0].AvailableSeats)
	assert.Equal(t, 9, *list[0].AvailableSeats)

	other := token(t, uuid.New(), middleware.RoleAdmin)
	code, env = f.do(http.MethodGet, "/v1/admin/events", other, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]dto.EventResponse](t, env))

	update := meetup(10)
	update["title"] = "Go Meetup (moved)"
	update["location"] = "Hall B"
	code, env = f.do(http.MethodPut, "/v1/admin/events/"+ev.ID.String(), f.admin, update)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "Hall B", decode[dto.EventResponse](t, env).Location)

	code, _ = f.do(http.MethodDelete, "/v1/admin/events/"+ev.ID.String(), other, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodDelete, "/v1/admin/events/"+ev.ID.String(), f.admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(http.MethodGet, "/v1/events/"+ev.ID.String(), f.ada, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, engine.ErrEventNotFound.Code, env.Error.Code)
}
