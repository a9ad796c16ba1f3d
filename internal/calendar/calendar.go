// Package calendar implements the "opaque calendar values" external to the
// store core: a Calendar excludes instants from a trigger's fire schedule
// (holidays, daily blackout windows, ...).
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// Calendar excludes certain instants from a schedule. TimeExcluded is
// consulted by triggertype.Schedule implementations when computing the next
// fire time, never by the store core directly (the core treats calendars as
// opaque values keyed by name).
type Calendar interface {
	TimeExcluded(t time.Time) bool
	// Type returns the registry key used to rehydrate this calendar from
	// its serialized form.
	Type() string
	Marshal() ([]byte, error)
}

// Registry resolves a calendar type identifier to a constructor, mirroring
// the TypeLoader consumed interface for jobs.
type Registry struct {
	ctors map[string]func([]byte) (Calendar, error)
}

// NewRegistry returns a Registry pre-populated with the calendars this repo
// ships.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]func([]byte) (Calendar, error))}
	r.Register("base", func(data []byte) (Calendar, error) { return unmarshalBase(data) })
	r.Register("daily", func(data []byte) (Calendar, error) { return unmarshalDaily(data) })
	return r
}

// Register adds or overrides a calendar type constructor.
func (r *Registry) Register(typ string, ctor func([]byte) (Calendar, error)) {
	r.ctors[typ] = ctor
}

// Hydrate rebuilds a Calendar from its stored type and data.
func (r *Registry) Hydrate(typ string, data []byte) (Calendar, error) {
	ctor, ok := r.ctors[typ]
	if !ok {
		return nil, fmt.Errorf("calendar: unknown type %q", typ)
	}
	return ctor(data)
}

// BaseCalendar excludes a fixed set of instant-level exclusions, optionally
// chaining to a base calendar the way Quartz's BaseCalendar does.
type BaseCalendar struct {
	Base Calendar
	Excluded []time.Time
}

func (c *BaseCalendar) Type() string { return "base" }

func (c *BaseCalendar) TimeExcluded(t time.Time) bool {
	for _, ex := range c.Excluded {
		if ex.Equal(t) {
			return true
		}
	}
	if c.Base != nil {
		return c.Base.TimeExcluded(t)
	}
	return false
}

type baseWire struct {
	Excluded []time.Time `json:"excluded"`
}

func (c *BaseCalendar) Marshal() ([]byte, error) {
	return json.Marshal(baseWire{Excluded: c.Excluded})
}

func unmarshalBase(data []byte) (Calendar, error) {
	var w baseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal base calendar: %w", err)
	}
	return &BaseCalendar{Excluded: w.Excluded}, nil
}

// DailyCalendar excludes a daily time-of-day window (e.g. a nightly
// maintenance blackout), modeled on Quartz's DailyCalendar.
type DailyCalendar struct {
	Base Calendar
	StartHourMin int // minutes since midnight
	EndHourMin int // minutes since midnight
	InvertTimeRange bool
}

func (c *DailyCalendar) Type() string { return "daily" }

func (c *DailyCalendar) TimeExcluded(t time.Time) bool {
	minutesOfDay := t.Hour()*60 + t.Minute()
	var inWindow bool
	if c.StartHourMin <= c.EndHourMin {
		inWindow = minutesOfDay >= c.StartHourMin && minutesOfDay < c.EndHourMin
	} else {
		// The window wraps past midnight, e.g. 22:00-06:00.
		inWindow = minutesOfDay >= c.StartHourMin || minutesOfDay < c.EndHourMin
	}
	if c.InvertTimeRange {
		inWindow = !inWindow
	}
	if inWindow {
		return true
	}
	if c.Base != nil {
		return c.Base.TimeExcluded(t)
	}
	return false
}

type dailyWire struct {
	StartHourMin int `json:"startHourMin"`
	EndHourMin int `json:"endHourMin"`
	InvertTimeRange bool `json:"invertTimeRange"`
}

func (c *DailyCalendar) Marshal() ([]byte, error) {
	return json.Marshal(dailyWire{
		StartHourMin: c.StartHourMin,
		EndHourMin: c.EndHourMin,
		InvertTimeRange: c.InvertTimeRange,
	})
}

func unmarshalDaily(data []byte) (Calendar, error) {
	var w dailyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal daily calendar: %w", err)
	}
	return &DailyCalendar{StartHourMin: w.StartHourMin, EndHourMin: w.EndHourMin, InvertTimeRange: w.InvertTimeRange}, nil
}
