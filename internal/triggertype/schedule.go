// Package triggertype supplies the trigger-type implementations the store
// treats as opaque values: a Schedule knows how to compute its first fire
// time, how to recompute after a misfire, and how to advance itself once it
// has fired. The store never inspects a Schedule's internals — it only
// calls the three methods below.
package triggertype

import (
	"fmt"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/model"
)

// Schedule is the capability every trigger type (Simple, Cron,...) must
// implement.
type Schedule interface {
	Type() string
	Marshal() ([]byte, error)

	// ComputeFirstFireTime returns the first instant, not excluded by cal,
	// at or after the schedule's configured start. now is the reference
	// instant a schedule type computes relative to (e.g. cron's Next);
	// schedules with a fixed start ignore it. Returns nil if the schedule
	// can never fire (e.g. a one-shot start time the calendar excludes).
	ComputeFirstFireTime(cal calendar.Calendar, now time.Time) *time.Time

	// UpdateAfterMisfire recomputes the next fire time for a trigger whose
	// previous nextFireTime slipped more than the misfire threshold into
	// the past. Returns nil if the schedule has no more fires.
	UpdateAfterMisfire(cal calendar.Calendar, instr model.MisfireInstruction, now time.Time) *time.Time

	// Triggered advances internal state after a normal (non-misfired) fire
	// at firedAt and returns the new next fire time, or nil if exhausted.
	Triggered(cal calendar.Calendar, firedAt time.Time) *time.Time
}

// Registry resolves a stored type identifier to a constructor that
// rehydrates a Schedule from its serialized data, mirroring the TypeLoader
// consumed interface for jobs.
type Registry struct {
	ctors map[string]func([]byte) (Schedule, error)
}

// NewRegistry returns a Registry pre-populated with the schedule types this
// repo ships (Simple, Cron).
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]func([]byte) (Schedule, error))}
	r.Register("simple", func(data []byte) (Schedule, error) { return unmarshalSimple(data) })
	r.Register("cron", func(data []byte) (Schedule, error) { return unmarshalCron(data) })
	return r
}

// Register adds or overrides a schedule type constructor.
func (r *Registry) Register(typ string, ctor func([]byte) (Schedule, error)) {
	r.ctors[typ] = ctor
}

// Hydrate rebuilds a Schedule from its stored type and data.
func (r *Registry) Hydrate(typ string, data []byte) (Schedule, error) {
	ctor, ok := r.ctors[typ]
	if !ok {
		return nil, fmt.Errorf("triggertype: unknown schedule type %q", typ)
	}
	return ctor(data)
}

// skipExcluded advances t by step until cal no longer excludes it, bounded
// to avoid spinning forever against a calendar that excludes everything.
func skipExcluded(cal calendar.Calendar, t time.Time, step time.Duration) time.Time {
	if cal == nil {
		return t
	}
	const maxAttempts = 1000
	for i := 0; i < maxAttempts && cal.TimeExcluded(t); i++ {
		t = t.Add(step)
	}
	return t
}
