package model

import (
	"time"

	"github.com/coreclock/jobstore/internal/key"
)

// Job is the persistent job record.
type Job struct {
	Key key.JobKey
	SchedulerName string
	JobType string
	JobDataMap map[string]any
	Description string

	ConcurrentExecutionDisallowed bool
	PersistJobDataAfterExecution bool
	Durable bool
	RequestsRecovery bool
}

// Trigger is the persistent trigger record.
type Trigger struct {
	Key key.TriggerKey
	SchedulerName string
	JobKey key.JobKey
	CalendarName string

	Priority int

	NextFireTime *time.Time
	PreviousFireTime *time.Time

	MisfireInstruction MisfireInstruction

	// ScheduleType/ScheduleData are the serialization boundary for the
	// type-specific scheduling data (cron expression, repeat interval,...).
	ScheduleType string
	ScheduleData []byte

	State TriggerState
	FireInstanceID string

	Description string
	JobDataMap map[string]any
}

// DefaultPriority is used when a trigger does not specify one.
const DefaultPriority = 5

// Calendar is the persistent calendar record: an opaque serialized value
// plus the type identifier needed to rehydrate it.
type Calendar struct {
	Name string
	SchedulerName string
	Type string
	Data []byte
}

// FiredTrigger is one row per in-flight fire.
type FiredTrigger struct {
	FireInstanceID string
	SchedulerName string
	InstanceID string
	TriggerKey key.TriggerKey
	JobKey key.JobKey
	JobGroup string
	State TriggerState // Acquired | Executing
	Priority int
	FiredTime time.Time
	ScheduledTime time.Time
	IsNonConcurrent bool
	RequestsRecovery bool
	JobDataMap map[string]any
}

// SchedulerStateRecord tracks cluster membership.
type SchedulerStateRecord struct {
	SchedulerName string
	InstanceID string
	LastCheckinTime time.Time
	CheckinInterval time.Duration
}

// SchedulerLifecycle mirrors the scheduler record's lifecycle state.
type SchedulerLifecycle string

const (
	LifecycleInitialized SchedulerLifecycle = "INITIALIZED"
	LifecycleStarted SchedulerLifecycle = "STARTED"
	LifecyclePaused SchedulerLifecycle = "PAUSED"
	LifecycleResumed SchedulerLifecycle = "RESUMED"
	LifecycleShutdown SchedulerLifecycle = "SHUTDOWN"
)

// FiredBundle is the value TriggersFired hands back to the caller per
// successfully-fired trigger.
type FiredBundle struct {
	Job *Job
	Trigger *Trigger
	Calendar *Calendar
	IsRecovering bool
	ScheduledFireTime time.Time
	PrevFireTime *time.Time
	NextFireTime *time.Time
}
