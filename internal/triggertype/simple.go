package triggertype

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/model"
)

// RepeatIndefinitely marks a SimpleSchedule that never exhausts its repeat count.
const RepeatIndefinitely = -1

// SimpleSchedule fires once at StartTime, then every RepeatInterval up to
// RepeatCount additional times (or forever, if RepeatIndefinitely). This is
// the Go analogue of Quartz's SimpleTrigger.
type SimpleSchedule struct {
	StartTime time.Time
	RepeatInterval time.Duration
	RepeatCount int
	TimesTriggered int
}

func (s *SimpleSchedule) Type() string { return "simple" }

type simpleWire struct {
	StartTime time.Time `json:"startTime"`
	RepeatInterval time.Duration `json:"repeatInterval"`
	RepeatCount int `json:"repeatCount"`
	TimesTriggered int `json:"timesTriggered"`
}

func (s *SimpleSchedule) Marshal() ([]byte, error) {
	return json.Marshal(simpleWire{
		StartTime: s.StartTime,
		RepeatInterval: s.RepeatInterval,
		RepeatCount: s.RepeatCount,
		TimesTriggered: s.TimesTriggered,
	})
}

func unmarshalSimple(data []byte) (Schedule, error) {
	var w simpleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal simple schedule: %w", err)
	}
	return &SimpleSchedule{
		StartTime: w.StartTime,
		RepeatInterval: w.RepeatInterval,
		RepeatCount: w.RepeatCount,
		TimesTriggered: w.TimesTriggered,
	}, nil
}

func (s *SimpleSchedule) ComputeFirstFireTime(cal calendar.Calendar, _ time.Time) *time.Time {
	t := s.StartTime
	if s.RepeatInterval > 0 {
		t = skipExcluded(cal, t, s.RepeatInterval)
	} else if cal != nil && cal.TimeExcluded(t) {
		return nil
	}
	return &t
}

func (s *SimpleSchedule) exhausted() bool {
	return s.RepeatCount != RepeatIndefinitely && s.TimesTriggered > s.RepeatCount
}

// UpdateAfterMisfire is only invoked for instructions other than Ignore —
// the store layer handles Ignore itself by leaving nextFireTime untouched.
func (s *SimpleSchedule) UpdateAfterMisfire(cal calendar.Calendar, instr model.MisfireInstruction, now time.Time) *time.Time {
	if s.exhausted() {
		return nil
	}
	if instr == model.MisfireDoNothing {
		return nil
	}
	// SmartPolicy and FireAndProceed both catch up to now for a simple schedule.
	t := now
	if s.RepeatInterval > 0 {
		t = skipExcluded(cal, t, s.RepeatInterval)
	}
	return &t
}

func (s *SimpleSchedule) Triggered(cal calendar.Calendar, firedAt time.Time) *time.Time {
	s.TimesTriggered++
	if s.exhausted() {
		return nil
	}
	if s.RepeatInterval <= 0 {
		return nil
	}
	next := firedAt.Add(s.RepeatInterval)
	next = skipExcluded(cal, next, s.RepeatInterval)
	return &next
}
