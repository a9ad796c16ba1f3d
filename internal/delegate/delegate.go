// Package delegate defines the back-end port: the narrow set
// of primitive queries and mutations the store core calls for every
// persistent effect. The core never touches a back-end directly — it calls
// only this interface, implemented once relationally (internal/delegate/postgres)
// and once in-process (internal/delegate/memory).
package delegate

import (
	"context"
	"time"

	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
)

// Tx is an opaque, back-end-specific transaction handle. The store core
// never inspects it — it only threads it through Delegate calls between
// Begin and Commit/Rollback.
type Tx interface{}

// Delegate is the back-end port every store-mutating core operation calls
// through. All methods take an open Tx and a context for cancellation.
type Delegate interface {
	// Transaction lifecycle.
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error

	// ObtainLock acquires the named row-level lock within tx on behalf of
	// requestorID (store-backed lock support; see internal/lock). The lock
	// is released implicitly when tx commits or rolls back.
	ObtainLock(ctx context.Context, tx Tx, schedulerName, lockName, requestorID string) error

	// Existence / detail queries.
	JobExists(ctx context.Context, tx Tx, k key.JobKey) (bool, error)
	TriggerExists(ctx context.Context, tx Tx, k key.TriggerKey) (bool, error)
	CalendarExists(ctx context.Context, tx Tx, name string) (bool, error)
	CalendarIsReferenced(ctx context.Context, tx Tx, name string) (bool, error)
	SelectJobDetail(ctx context.Context, tx Tx, k key.JobKey) (*model.Job, error)
	SelectTrigger(ctx context.Context, tx Tx, k key.TriggerKey) (*model.Trigger, error)
	// SelectTriggerState returns model.StateDeleted if no such trigger exists.
	SelectTriggerState(ctx context.Context, tx Tx, k key.TriggerKey) (model.TriggerState, error)
	SelectTriggerStatus(ctx context.Context, tx Tx, k key.TriggerKey) (state model.TriggerState, nextFireTime *time.Time, jobKey key.JobKey, found bool, err error)
	SelectTriggersForJob(ctx context.Context, tx Tx, jk key.JobKey) ([]*model.Trigger, error)
	SelectTriggerNamesForJob(ctx context.Context, tx Tx, jk key.JobKey) ([]string, error)
	SelectTriggersForCalendar(ctx context.Context, tx Tx, calName string) ([]*model.Trigger, error)
	SelectNumTriggersForJob(ctx context.Context, tx Tx, jk key.JobKey) (int, error)
	SelectTriggersInState(ctx context.Context, tx Tx, state model.TriggerState) ([]*model.Trigger, error)

	// SelectTriggerToAcquire returns up to maxCount trigger keys in state
	// Waiting with nextFireTime in (misfireTime, noLaterThan], ordered by
	// nextFireTime ascending then priority descending.
	SelectTriggerToAcquire(ctx context.Context, tx Tx, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error)

	SelectPausedTriggerGroups(ctx context.Context, tx Tx) ([]string, error)
	SelectTriggerGroups(ctx context.Context, tx Tx) ([]string, error)
	SelectJobGroups(ctx context.Context, tx Tx) ([]string, error)
	SelectCalendars(ctx context.Context, tx Tx) ([]*model.Calendar, error)
	SelectCalendar(ctx context.Context, tx Tx, name string) (*model.Calendar, error)

	SelectNumJobs(ctx context.Context, tx Tx) (int, error)
	SelectNumTriggers(ctx context.Context, tx Tx) (int, error)
	SelectNumCalendars(ctx context.Context, tx Tx) (int, error)

	SelectJobKeys(ctx context.Context, tx Tx, m key.GroupMatcher) ([]key.JobKey, error)
	SelectTriggerKeys(ctx context.Context, tx Tx, m key.GroupMatcher) ([]key.TriggerKey, error)

	SelectSchedulerStateRecords(ctx context.Context, tx Tx, schedulerName string) ([]*model.SchedulerStateRecord, error)
	SelectFiredTriggerRecords(ctx context.Context, tx Tx, k key.TriggerKey) ([]*model.FiredTrigger, error)
	SelectFiredTriggerRecordsForJob(ctx context.Context, tx Tx, jk key.JobKey) ([]*model.FiredTrigger, error)
	SelectInstancesFiredTriggerRecords(ctx context.Context, tx Tx, instanceID string) ([]*model.FiredTrigger, error)
	SelectFiredTriggerInstanceNames(ctx context.Context, tx Tx) ([]string, error)

	CountMisfiredTriggersInState(ctx context.Context, tx Tx, state model.TriggerState, beforeTime time.Time) (int, error)
	// SelectMisfiredTriggersInState returns up to maxCount trigger keys
	// whose state is `state` and nextFireTime < beforeTime, along with
	// whether more remain beyond maxCount.
	SelectMisfiredTriggersInState(ctx context.Context, tx Tx, state model.TriggerState, beforeTime time.Time, maxCount int) (keys []key.TriggerKey, hasMore bool, err error)

	SelectTriggerJobDataMap(ctx context.Context, tx Tx, k key.TriggerKey) (map[string]any, error)

	// Mutations.
	InsertJobDetail(ctx context.Context, tx Tx, j *model.Job) error
	UpdateJobDetail(ctx context.Context, tx Tx, j *model.Job) error
	DeleteJobDetail(ctx context.Context, tx Tx, jk key.JobKey) (bool, error)

	InsertTrigger(ctx context.Context, tx Tx, t *model.Trigger) error
	UpdateTrigger(ctx context.Context, tx Tx, t *model.Trigger) error
	DeleteTrigger(ctx context.Context, tx Tx, k key.TriggerKey) (bool, error)

	InsertCalendar(ctx context.Context, tx Tx, c *model.Calendar) error
	UpdateCalendar(ctx context.Context, tx Tx, c *model.Calendar) error
	DeleteCalendar(ctx context.Context, tx Tx, name string) (bool, error)

	InsertFiredTrigger(ctx context.Context, tx Tx, f *model.FiredTrigger) error
	UpdateFiredTrigger(ctx context.Context, tx Tx, f *model.FiredTrigger) error
	DeleteFiredTrigger(ctx context.Context, tx Tx, fireInstanceID string) (bool, error)
	DeleteFiredTriggersForInstance(ctx context.Context, tx Tx, instanceID string) (int, error)

	UpdateTriggerState(ctx context.Context, tx Tx, k key.TriggerKey, newState model.TriggerState) (bool, error)
	UpdateTriggerStateFromOtherState(ctx context.Context, tx Tx, k key.TriggerKey, newState, oldState model.TriggerState) (bool, error)
	UpdateTriggerStatesFromOtherStates(ctx context.Context, tx Tx, newState model.TriggerState, oldStates...model.TriggerState) (int, error)
	UpdateTriggerGroupStateFromOtherState(ctx context.Context, tx Tx, m key.GroupMatcher, newState, oldState model.TriggerState) ([]string, error)
	UpdateTriggerGroupStateFromOtherStates(ctx context.Context, tx Tx, m key.GroupMatcher, newState model.TriggerState, oldStates...model.TriggerState) ([]string, error)
	UpdateTriggerStatesForJob(ctx context.Context, tx Tx, jk key.JobKey, newState model.TriggerState) (int, error)
	UpdateTriggerStatesForJobFromOtherState(ctx context.Context, tx Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error)

	InsertPausedTriggerGroup(ctx context.Context, tx Tx, group string) error
	DeletePausedTriggerGroup(ctx context.Context, tx Tx, group string) error
	DeleteAllPausedTriggerGroups(ctx context.Context, tx Tx) error
	IsTriggerGroupPaused(ctx context.Context, tx Tx, group string) (bool, error)

	InsertPausedJobGroup(ctx context.Context, tx Tx, group string) error
	DeletePausedJobGroup(ctx context.Context, tx Tx, group string) error
	SelectPausedJobGroups(ctx context.Context, tx Tx) ([]string, error)
	IsJobGroupPaused(ctx context.Context, tx Tx, group string) (bool, error)

	UpdateSchedulerState(ctx context.Context, tx Tx, rec *model.SchedulerStateRecord) (bool, error)
	InsertSchedulerState(ctx context.Context, tx Tx, rec *model.SchedulerStateRecord) error
	DeleteSchedulerState(ctx context.Context, tx Tx, instanceID string) (bool, error)

	// ClearData bulk-deletes every job, trigger, calendar, fired trigger and
	// paused-group record scoped to this scheduler name.
	ClearData(ctx context.Context, tx Tx) error
}
