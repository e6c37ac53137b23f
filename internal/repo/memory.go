package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gathered/internal/engine"
	"gathered/internal/model"
)

// Memory is a Repository kept in process memory. A single mutex stands in for
// the row locks the postgres implementation takes.
type Memory struct {
	mu            sync.Mutex
	events        map[uuid.UUID]model.Event
	registrations map[uuid.UUID]model.Registration
	students      map[uuid.UUID]model.Student
	feedback      []model.Feedback
}

var _ Repository = (*Memory)(nil)

func NewMemoryRepository() *Memory {
	return &Memory{
		events:        make(map[uuid.UUID]model.Event),
		registrations: make(map[uuid.UUID]model.Registration),
		students:      make(map[uuid.UUID]model.Student),
	}
}

func (m *Memory) AddStudent(s model.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) MigrateUp(string) error   { return nil }
func (m *Memory) MigrateDown(string) error { return nil }

func (m *Memory) CreateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	m.events[e.ID] = *e
	return nil
}

func (m *Memory) UpdateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return ErrEventNotFound
	}
	e.UpdatedAt = time.Now()
	m.events[e.ID] = *e
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(m.events, id)
	for rid, r := range m.registrations {
		if r.EventID == id {
			delete(m.registrations, rid)
		}
	}
	kept := m.feedback[:0]
	for _, f := range m.feedback {
		if f.EventID != id {
			kept = append(kept, f)
		}
	}
	m.feedback = kept
	return nil
}

func (m *Memory) GetEventByID(_ context.Context, id uuid.UUID) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (m *Memory) EventExists(_ context.Context, e *model.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.events {
		if other.ID != e.ID && other.OwnerID == e.OwnerID && other.Title == e.Title &&
			other.Date == e.Date && sameClock(other.StartTime, e.StartTime) && other.Location == e.Location {
			return true, nil
		}
	}
	return false, nil
}

func sameClock(a, b string) bool {
	ca, okA := engine.ParseClock(a)
	cb, okB := engine.ParseClock(b)
	return okA && okB && ca.Equal(cb)
}

func (m *Memory) sortedEvents(keep func(model.Event) bool) []model.Event {
	var out []model.Event
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *Memory) GetEventsByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedEvents(func(e model.Event) bool { return e.OwnerID == ownerID }), nil
}

func (m *Memory) GetEventsFrom(_ context.Context, fromDate string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedEvents(func(e model.Event) bool { return e.Date >= fromDate }), nil
}

func (m *Memory) countSeats(eventID uuid.UUID) int {
	n := 0
	for _, r := range m.registrations {
		if r.EventID == eventID && engine.RegistrationStatus(r.Status).HoldsSeat() {
			n++
		}
	}
	return n
}

func (m *Memory) CountRegistrations(_ context.Context, eventID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countSeats(eventID), nil
}

// find returns the student's active row for the event, else their latest cancelled one.
func (m *Memory) find(studentID, eventID uuid.UUID) *model.Registration {
	var best *model.Registration
	for _, r := range m.registrations {
		if r.StudentID != studentID || r.EventID != eventID {
			continue
		}
		r := r
		if engine.RegistrationStatus(r.Status).Active() {
			return &r
		}
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) {
			best = &r
		}
	}
	return best
}

func (m *Memory) RegisterTx(_ context.Context, eventID, studentID uuid.UUID, decide RegisterFunc) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	reg, err := decide(&e, m.find(studentID, eventID), m.countSeats(eventID))
	if err != nil {
		return nil, err
	}
	m.registrations[reg.ID] = *reg
	return reg, nil
}

func (m *Memory) UpdateRegistrationTx(_ context.Context, registrationID uuid.UUID, decide UpdateFunc) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[registrationID]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	e, ok := m.events[reg.EventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	next, err := decide(&e, &reg)
	if err != nil {
		return nil, err
	}
	m.registrations[next.ID] = *next
	return next, nil
}

func (m *Memory) GetRegistrationByID(_ context.Context, id uuid.UUID) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrations[id]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	return &r, nil
}

func (m *Memory) GetRegistration(_ context.Context, studentID, eventID uuid.UUID) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(studentID, eventID); r != nil {
		return r, nil
	}
	return nil, ErrRegistrationNotFound
}

func (m *Memory) GetRegistrationsByStudent(_ context.Context, studentID uuid.UUID) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.registrations {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

func (m *Memory) GetRosterByEventID(_ context.Context, eventID uuid.UUID) ([]model.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RosterEntry
	for _, r := range m.registrations {
		if r.EventID != eventID || engine.RegistrationStatus(r.Status) == engine.Cancelled {
			continue
		}
		s, ok := m.students[r.StudentID]
		if !ok {
			continue
		}
		out = append(out, model.RosterEntry{Registration: r, StudentName: s.Name, StudentEmail: s.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (m *Memory) GetStudentByID(_ context.Context, id uuid.UUID) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return &s, nil
}

func (m *Memory) SubmitFeedbackTx(_ context.Context, fb *model.Feedback, decide FeedbackFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[fb.EventID]
	if !ok {
		return ErrEventNotFound
	}
	reg := m.find(fb.StudentID, fb.EventID)
	if reg != nil && !engine.RegistrationStatus(reg.Status).Active() {
		reg = nil
	}
	exists := false
	for _, f := range m.feedback {
		if f.EventID == fb.EventID && f.StudentID == fb.StudentID {
			exists = true
			break
		}
	}
	if err := decide(&e, reg, exists); err != nil {
		return err
	}
	fb.SubmittedAt = time.Now()
	m.feedback = append(m.feedback, *fb)
	return nil
}

func (m *Memory) GetFeedbackByEventID(_ context.Context, eventID uuid.UUID) ([]model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Feedback
	for _, f := range m.feedback {
		if f.EventID == eventID {
			out = append(out, f)
		}
	}
	return out, nil
}
