package calendar_test

import (
	"testing"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
)

func TestBaseCalendar_TimeExcluded(t *testing.T) {
	excluded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &calendar.BaseCalendar{Excluded: []time.Time{excluded}}

	if !c.TimeExcluded(excluded) {
		t.Error("expected excluded instant to be excluded")
	}
	if c.TimeExcluded(excluded.Add(time.Hour)) {
		t.Error("expected non-excluded instant to pass through")
	}
}

func TestBaseCalendar_ChainsToBase(t *testing.T) {
	excluded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := &calendar.BaseCalendar{Excluded: []time.Time{excluded}}
	chained := &calendar.BaseCalendar{Base: base}

	if !chained.TimeExcluded(excluded) {
		t.Error("expected chained calendar to defer to base")
	}
}

func TestDailyCalendar_TimeExcluded(t *testing.T) {
	c := &calendar.DailyCalendar{StartHourMin: 22 * 60, EndHourMin: 6 * 60}

	inWindow := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !c.TimeExcluded(inWindow) {
		t.Error("expected 23:00 to be excluded by a 22:00-06:00 window")
	}
	if c.TimeExcluded(outOfWindow) {
		t.Error("expected 12:00 to not be excluded")
	}
}

func TestDailyCalendar_Inverted(t *testing.T) {
	c := &calendar.DailyCalendar{StartHourMin: 9 * 60, EndHourMin: 17 * 60, InvertTimeRange: true}

	businessHours := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	afterHours := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	if c.TimeExcluded(businessHours) {
		t.Error("inverted window should not exclude business hours")
	}
	if !c.TimeExcluded(afterHours) {
		t.Error("inverted window should exclude after hours")
	}
}

func TestRegistry_HydrateRoundTrip(t *testing.T) {
	reg := calendar.NewRegistry()

	base := &calendar.BaseCalendar{Excluded: []time.Time{time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}}
	data, err := base.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := reg.Hydrate(base.Type(), data)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if !got.TimeExcluded(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("rehydrated calendar lost its excluded instant")
	}

	daily := &calendar.DailyCalendar{StartHourMin: 60, EndHourMin: 120}
	data, err = daily.Marshal()
	if err != nil {
		t.Fatalf("marshal daily: %v", err)
	}
	got, err = reg.Hydrate(daily.Type(), data)
	if err != nil {
		t.Fatalf("hydrate daily: %v", err)
	}
	if got.(*calendar.DailyCalendar).EndHourMin != 120 {
		t.Errorf("EndHourMin = %d, want 120", got.(*calendar.DailyCalendar).EndHourMin)
	}
}

func TestRegistry_HydrateUnknownType(t *testing.T) {
	reg := calendar.NewRegistry()
	if _, err := reg.Hydrate("nonexistent", nil); err == nil {
		t.Fatal("expected error for unknown calendar type")
	}
}
