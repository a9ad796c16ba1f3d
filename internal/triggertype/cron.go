package triggertype

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/robfig/cron/v3"
)

// CronSchedule fires on a standard five-field cron expression. This is the
// Go analogue of Quartz's CronTrigger, computed with robfig/cron/v3: parse
// once, then Next() from a reference instant, skipping instants the calendar
// excludes. There is no separate check that the result is not in the past.
type CronSchedule struct {
	Expr string

	sched cron.Schedule
}

func NewCronSchedule(expr string) (*CronSchedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return &CronSchedule{Expr: expr, sched: sched}, nil
}

func (c *CronSchedule) Type() string { return "cron" }

type cronWire struct {
	Expr string `json:"expr"`
}

func (c *CronSchedule) Marshal() ([]byte, error) {
	return json.Marshal(cronWire{Expr: c.Expr})
}

func unmarshalCron(data []byte) (Schedule, error) {
	var w cronWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal cron schedule: %w", err)
	}
	return NewCronSchedule(w.Expr)
}

func (c *CronSchedule) next(after time.Time, cal calendar.Calendar) time.Time {
	t := c.sched.Next(after)
	const maxAttempts = 1000
	for i := 0; i < maxAttempts && cal != nil && cal.TimeExcluded(t); i++ {
		t = c.sched.Next(t)
	}
	return t
}

func (c *CronSchedule) ComputeFirstFireTime(cal calendar.Calendar, now time.Time) *time.Time {
	t := c.next(now, cal)
	return &t
}

// UpdateAfterMisfire is only invoked for instructions other than Ignore —
// the store layer handles Ignore itself by leaving nextFireTime untouched.
func (c *CronSchedule) UpdateAfterMisfire(cal calendar.Calendar, instr model.MisfireInstruction, now time.Time) *time.Time {
	if instr == model.MisfireDoNothing {
		return nil
	}
	// SmartPolicy and FireAndProceed both skip missed firings and resume from now.
	t := c.next(now, cal)
	return &t
}

func (c *CronSchedule) Triggered(cal calendar.Calendar, firedAt time.Time) *time.Time {
	t := c.next(firedAt, cal)
	return &t
}
