package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResolve(t *testing.T) {
	r := NewResolver(time.UTC, DefaultDuration)

	tests := []struct {
		name      string
		sched     Schedule
		now       time.Time
		wantPhase Phase
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "upcoming",
			sched:     Schedule{Date: "2025-06-01", StartTime: "10:00", EndTime: "12:00"},
			now:       at("2025-05-30 09:00"),
			wantPhase: PhaseUpcoming,
			wantStart: at("2025-06-01 10:00"),
			wantEnd:   at("2025-06-01 12:00"),
		},
		{
			name:      "active at start instant",
			sched:     Schedule{Date: "2025-06-01", StartTime: "10:00:00", EndTime: "12:00:00"},
			now:       at("2025-06-01 10:00"),
			wantPhase: PhaseActive,
			wantStart: at("2025-06-01 10:00"),
			wantEnd:   at("2025-06-01 12:00"),
		},
		{
			name:      "completed at end instant",
			sched:     Schedule{Date: "2025-06-01", StartTime: "10:00", EndTime: "12:00"},
			now:       at("2025-06-01 12:00"),
			wantPhase: PhaseCompleted,
			wantStart: at("2025-06-01 10:00"),
			wantEnd:   at("2025-06-01 12:00"),
		},
		{
			name:      "missing end uses default duration",
			sched:     Schedule{Date: "2025-06-01", StartTime: "10:00"},
			now:       at("2025-06-01 11:59"),
			wantPhase: PhaseActive,
			wantStart: at("2025-06-01 10:00"),
			wantEnd:   at("2025-06-01 12:00"),
		},
		{
			name:      "midnight span",
			sched:     Schedule{Date: "2025-06-01", StartTime: "23:00", EndTime: "01:00"},
			now:       at("2025-06-01 23:30"),
			wantPhase: PhaseActive,
			wantStart: at("2025-06-01 23:00"),
			wantEnd:   at("2025-06-02 01:00"),
		},
		{
			name:      "midnight span after midnight",
			sched:     Schedule{Date: "2025-06-01", StartTime: "23:00", EndTime: "01:00"},
			now:       at("2025-06-02 00:30"),
			wantPhase: PhaseActive,
			wantStart: at("2025-06-01 23:00"),
			wantEnd:   at("2025-06-02 01:00"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.sched, tt.now)
			assert.Equal(t, tt.wantPhase, got.Phase)
			assert.True(t, tt.wantStart.Equal(got.Start), "start = %v", got.Start)
			assert.True(t, tt.wantEnd.Equal(got.End), "end = %v", got.End)
			assert.Nil(t, got.ManualLimit)
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewResolver(time.UTC, DefaultDuration)
	now := at("2025-06-01 10:00")

	for name, sched := range map[string]Schedule{
		"missing start":   {Date: "2025-06-01"},
		"missing date":    {StartTime: "10:00"},
		"malformed date":  {Date: "06/01/2025", StartTime: "10:00"},
		"malformed start": {Date: "2025-06-01", StartTime: "ten"},
		"malformed end":   {Date: "2025-06-01", StartTime: "10:00", EndTime: "25:99"},
	} {
		t.Run(name, func(t *testing.T) {
			got := r.Resolve(sched, now)
			assert.Equal(t, PhaseUnknown, got.Phase)
			assert.False(t, got.Known())
		})
	}
}

func TestResolveManualLimit(t *testing.T) {
	r := NewResolver(time.UTC, DefaultDuration)
	now := at("2025-05-30 09:00")

	got := r.Resolve(Schedule{Date: "2025-06-01", StartTime: "10:00", CloseDate: "2025-05-31", CloseTime: "18:30"}, now)
	require.NotNil(t, got.ManualLimit)
	assert.True(t, at("2025-05-31 18:30").Equal(*got.ManualLimit))

	got = r.Resolve(Schedule{Date: "2025-06-01", StartTime: "10:00", CloseDate: "2025-05-31"}, now)
	assert.Nil(t, got.ManualLimit, "limit needs both date and time")
}

func TestResolveLocation(t *testing.T) {
	loc := time.FixedZone("PHT", 8*60*60)
	r := NewResolver(loc, 0)

	got := r.Resolve(Schedule{Date: "2025-06-01", StartTime: "10:00"}, time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, PhaseActive, got.Phase, "02:30 UTC is 10:30 in UTC+8")
	assert.Equal(t, DefaultDuration, got.End.Sub(got.Start))
}
