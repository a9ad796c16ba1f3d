// Package store implements the core trigger/job state machine on top of a pluggable Delegate back-end, a lock.Manager and a
// txrunner.Runner. It is the single place that knows how a job scheduler's
// persisted state may legally change shape.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/statemachine"
	"github.com/coreclock/jobstore/internal/triggertype"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// Clock is the consumed interface for the current instant,
// injectable for tests.
type Clock interface {
	Now() time.Time
}

// Config is the configuration surface enumerates.
type Config struct {
	InstanceName string
	InstanceID string
	Clustered bool
	UseDBLocks bool

	DBRetryInterval time.Duration
	MisfireThreshold time.Duration
	MaxMisfiresToHandleAtATime int
	AcquireTriggersWithinLock bool
	ClusterCheckinInterval time.Duration
	DoubleCheckLockMisfireHandler bool
}

func (c Config) withDefaults() Config {
	if c.DBRetryInterval <= 0 {
		c.DBRetryInterval = 15 * time.Second
	}
	if c.MisfireThreshold <= 0 {
		c.MisfireThreshold = 60 * time.Second
	}
	if c.MaxMisfiresToHandleAtATime <= 0 {
		c.MaxMisfiresToHandleAtATime = 20
	}
	if c.ClusterCheckinInterval <= 0 {
		c.ClusterCheckinInterval = 15 * time.Second
	}
	return c
}

// Store is the exposed interface the scheduler runtime drives.
type Store struct {
	cfg Config

	delegate delegate.Delegate
	lockMgr lock.Manager
	runner *txrunner.Runner
	clock Clock

	schedules *triggertype.Registry
	calendars *calendar.Registry

	logger *slog.Logger

	isShutdown atomic.Bool
	firstCheck atomic.Bool

	fireSeq atomic.Uint64

	// calCache is the non-clustered calendar cache: a small mapping from
	// name to calendar value, invalidated on store/remove.
	// Disabled (nil map access skipped) when clustered.
	calCacheMu sync.Mutex
	calCache map[string]calendar.Calendar
}

// New builds a Store. signaler becomes the txrunner.Runner's Signaler.
func New(cfg Config, d delegate.Delegate, lm lock.Manager, signaler txrunner.Signaler, schedules *triggertype.Registry, calendars *calendar.Registry, clock Clock, logger *slog.Logger) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg: cfg,
		delegate: d,
		lockMgr: lm,
		clock: clock,
		schedules: schedules,
		calendars: calendars,
		logger: logger,
	}
	s.firstCheck.Store(true)
	if !cfg.Clustered {
		s.calCache = make(map[string]calendar.Calendar)
	}
	s.runner = txrunner.NewRunner(d, lm, signaler, logger, cfg.DBRetryInterval, s.IsShutdown)
	return s
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *Store) IsShutdown() bool { return s.isShutdown.Load() }

// Initialize creates the scheduler record if absent. Job execution
// dispatch (TypeLoader) is outside this store's scope; only the signaler
// wiring happens at construction time via New.
func (s *Store) Initialize(ctx context.Context) error {
	return s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		recs, err := s.delegate.SelectSchedulerStateRecords(ctx, tx, s.cfg.InstanceName)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.InstanceID == s.cfg.InstanceID {
				return nil, nil
			}
		}
		return nil, s.delegate.InsertSchedulerState(ctx, tx, &model.SchedulerStateRecord{
			SchedulerName: s.cfg.InstanceName,
			InstanceID: s.cfg.InstanceID,
			LastCheckinTime: s.now(),
			CheckinInterval: s.cfg.ClusterCheckinInterval,
		})
	})
}

func (s *Store) SchedulerStarted(ctx context.Context) error {
	return s.recoverJobs(ctx)
}

func (s *Store) SchedulerPaused(_ context.Context) error { return nil }
func (s *Store) SchedulerResumed(_ context.Context) error { return nil }

func (s *Store) Shutdown(_ context.Context) error {
	s.isShutdown.Store(true)
	return nil
}

// --- Job CRUD -------------------------------------------------------------

func (s *Store) StoreJob(ctx context.Context, job *model.Job, replaceExisting bool) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return nil, s.storeJob(ctx, tx, job, replaceExisting)
	}, nil)
}

func (s *Store) storeJob(ctx context.Context, tx delegate.Tx, job *model.Job, replaceExisting bool) error {
	exists, err := s.delegate.JobExists(ctx, tx, job.Key)
	if err != nil {
		return err
	}
	job.SchedulerName = s.cfg.InstanceName
	if exists {
		if !replaceExisting {
			return fmt.Errorf("%w: job %s", model.ErrObjectAlreadyExists, job.Key)
		}
		return s.delegate.UpdateJobDetail(ctx, tx, job)
	}
	return s.delegate.InsertJobDetail(ctx, tx, job)
}

func (s *Store) RemoveJob(ctx context.Context, k key.JobKey) (bool, error) {
	var removed bool
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		for _, t := range triggers {
			if _, err := s.delegate.DeleteTrigger(ctx, tx, t.Key); err != nil {
				return nil, err
			}
		}
		ok, err := s.delegate.DeleteJobDetail(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		removed = ok
		return nil, nil
	}, nil)
	return removed, err
}

func (s *Store) RetrieveJob(ctx context.Context, k key.JobKey) (*model.Job, error) {
	var job *model.Job
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		j, err := s.delegate.SelectJobDetail(ctx, tx, k)
		job = j
		return nil, err
	})
	return job, err
}

// --- Trigger CRUD ----------------------------------------------------------

// StoreTrigger implements storeTrigger(trigger, job, replaceExisting, state,
// forceState, recovering). If job is non-nil it is stored
// alongside the trigger (durable or not). forceState bypasses the paused-
// group and Blocked-check state derivation; the caller asserts the exact
// state to persist (used by the acquire/fire pipeline and by recovery).
func (s *Store) StoreTrigger(ctx context.Context, trig *model.Trigger, job *model.Job, replaceExisting bool, state model.TriggerState, forceState, recovering bool) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return nil, s.storeTrigger(ctx, tx, trig, job, replaceExisting, state, forceState, recovering)
	}, nil)
}

func (s *Store) storeTrigger(ctx context.Context, tx delegate.Tx, trig *model.Trigger, job *model.Job, replaceExisting bool, state model.TriggerState, forceState, recovering bool) error {
	if job != nil {
		if err := s.storeJob(ctx, tx, job, true); err != nil && !errors.Is(err, model.ErrObjectAlreadyExists) {
			return err
		}
	} else {
		exists, err := s.delegate.JobExists(ctx, tx, trig.JobKey)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: job %s for trigger %s", model.ErrNoSuchObject, trig.JobKey, trig.Key)
		}
	}

	finalState := state
	if !forceState {
		groupPaused, err := s.groupOrAllPaused(ctx, tx, trig.Key.Group)
		if err != nil {
			return err
		}
		if !groupPaused {
			groupPaused, err = s.delegate.IsJobGroupPaused(ctx, tx, trig.JobKey.Group)
			if err != nil {
				return err
			}
		}
		finalState = statemachine.ForceStateForGroupPause(state, groupPaused)
		// Preserved quirk: a shouldBePaused check driven by the all-groups
		// sentinel still re-adds this trigger's own group to
		// pausedTriggerGroups, individually paused from here on.
		if groupPaused && finalState == model.StatePaused {
			allPaused, err := s.delegate.IsTriggerGroupPaused(ctx, tx, model.AllGroupsPausedSentinel)
			if err != nil {
				return err
			}
			if allPaused {
				if err := s.delegate.InsertPausedTriggerGroup(ctx, tx, trig.Key.Group); err != nil {
					return err
				}
			}
		}
	}

	trig.SchedulerName = s.cfg.InstanceName
	trig.State = finalState

	exists, err := s.delegate.TriggerExists(ctx, tx, trig.Key)
	if err != nil {
		return err
	}
	if exists {
		if !replaceExisting {
			return fmt.Errorf("%w: trigger %s", model.ErrObjectAlreadyExists, trig.Key)
		}
		return s.delegate.UpdateTrigger(ctx, tx, trig)
	}
	_ = recovering // recovering triggers are inserted the same way; the flag
	// only matters to the caller's bookkeeping (FiredTrigger.requestsRecovery).
	return s.delegate.InsertTrigger(ctx, tx, trig)
}

func (s *Store) groupOrAllPaused(ctx context.Context, tx delegate.Tx, group string) (bool, error) {
	paused, err := s.delegate.IsTriggerGroupPaused(ctx, tx, group)
	if err != nil || paused {
		return paused, err
	}
	return s.delegate.IsTriggerGroupPaused(ctx, tx, model.AllGroupsPausedSentinel)
}

func (s *Store) RemoveTrigger(ctx context.Context, k key.TriggerKey) (bool, error) {
	var removed bool
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		ok, err := s.removeTrigger(ctx, tx, k)
		removed = ok
		return nil, err
	}, nil)
	return removed, err
}

// removeTrigger deletes the trigger and, if its job is non-durable and has
// no remaining triggers, deletes the job too.
func (s *Store) removeTrigger(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (bool, error) {
	trig, err := s.delegate.SelectTrigger(ctx, tx, k)
	if err != nil {
		return false, err
	}
	if trig == nil {
		return false, nil
	}
	if _, err := s.delegate.DeleteTrigger(ctx, tx, k); err != nil {
		return false, err
	}

	job, err := s.delegate.SelectJobDetail(ctx, tx, trig.JobKey)
	if err != nil || job == nil {
		return true, err
	}
	if job.Durable {
		return true, nil
	}
	n, err := s.delegate.SelectNumTriggersForJob(ctx, tx, job.Key)
	if err != nil {
		return true, err
	}
	if n == 0 {
		if _, err := s.delegate.DeleteJobDetail(ctx, tx, job.Key); err != nil {
			return true, err
		}
		if s.runner.Signaler != nil {
			s.runner.Signaler.NotifySchedulerListenersJobDeleted(job.Key)
		}
	}
	return true, nil
}

func (s *Store) ReplaceTrigger(ctx context.Context, k key.TriggerKey, newTrigger *model.Trigger) (bool, error) {
	var replaced bool
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		old, err := s.delegate.SelectTrigger(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		if old == nil {
			return nil, nil
		}
		newTrigger.JobKey = old.JobKey
		if _, err := s.delegate.DeleteTrigger(ctx, tx, k); err != nil {
			return nil, err
		}
		if err := s.storeTrigger(ctx, tx, newTrigger, nil, false, model.StateWaiting, false, false); err != nil {
			return nil, err
		}
		replaced = true
		return nil, nil
	}, nil)
	return replaced, err
}

func (s *Store) RetrieveTrigger(ctx context.Context, k key.TriggerKey) (*model.Trigger, error) {
	var trig *model.Trigger
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		t, err := s.delegate.SelectTrigger(ctx, tx, k)
		trig = t
		return nil, err
	})
	return trig, err
}

func (s *Store) GetTriggerState(ctx context.Context, k key.TriggerKey) (model.ExternalTriggerState, error) {
	var ext model.ExternalTriggerState
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		state, err := s.delegate.SelectTriggerState(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		ext = state.ToExternal()
		return nil, nil
	})
	return ext, err
}

// --- Calendar CRUD ---------------------------------------------------------

func (s *Store) StoreCalendar(ctx context.Context, cal *model.Calendar, replaceExisting, updateTriggers bool) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		exists, err := s.delegate.CalendarExists(ctx, tx, cal.Name)
		if err != nil {
			return nil, err
		}
		cal.SchedulerName = s.cfg.InstanceName
		if exists {
			if !replaceExisting {
				return nil, fmt.Errorf("%w: calendar %s", model.ErrObjectAlreadyExists, cal.Name)
			}
			if err := s.delegate.UpdateCalendar(ctx, tx, cal); err != nil {
				return nil, err
			}
		} else if err := s.delegate.InsertCalendar(ctx, tx, cal); err != nil {
			return nil, err
		}
		s.invalidateCalCache(cal.Name)
		if !updateTriggers {
			return nil, nil
		}
		return s.recomputeTriggersForCalendar(ctx, tx, cal.Name)
	}, nil)
}

func (s *Store) recomputeTriggersForCalendar(ctx context.Context, tx delegate.Tx, calName string) (*time.Time, error) {
	triggers, err := s.delegate.SelectTriggersForCalendar(ctx, tx, calName)
	if err != nil {
		return nil, err
	}
	calVal, err := s.loadCalendar(ctx, tx, calName)
	if err != nil {
		return nil, err
	}
	var signal *time.Time
	for _, t := range triggers {
		sched, err := s.schedules.Hydrate(t.ScheduleType, t.ScheduleData)
		if err != nil {
			return nil, err
		}
		next := sched.ComputeFirstFireTime(calVal, s.now())
		t.NextFireTime = next
		if err := s.delegate.UpdateTrigger(ctx, tx, t); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, next)
	}
	return signal, nil
}

func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		referenced, err := s.delegate.CalendarIsReferenced(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if referenced {
			return nil, fmt.Errorf("%w: calendar %s is referenced by a trigger", model.ErrConfiguration, name)
		}
		ok, err := s.delegate.DeleteCalendar(ctx, tx, name)
		removed = ok
		s.invalidateCalCache(name)
		return nil, err
	}, nil)
	return removed, err
}

func (s *Store) RetrieveCalendar(ctx context.Context, name string) (*model.Calendar, error) {
	var cal *model.Calendar
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		c, err := s.delegate.SelectCalendar(ctx, tx, name)
		cal = c
		return nil, err
	})
	return cal, err
}

// loadCalendar resolves a calendar value by name, consulting the
// non-clustered cache first.
func (s *Store) loadCalendar(ctx context.Context, tx delegate.Tx, name string) (calendar.Calendar, error) {
	if name == "" {
		return nil, nil
	}
	if s.calCache != nil {
		s.calCacheMu.Lock()
		if c, ok := s.calCache[name]; ok {
			s.calCacheMu.Unlock()
			return c, nil
		}
		s.calCacheMu.Unlock()
	}
	rec, err := s.delegate.SelectCalendar(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	cal, err := s.calendars.Hydrate(rec.Type, rec.Data)
	if err != nil {
		return nil, err
	}
	if s.calCache != nil {
		s.calCacheMu.Lock()
		s.calCache[name] = cal
		s.calCacheMu.Unlock()
	}
	return cal, nil
}

func (s *Store) invalidateCalCache(name string) {
	if s.calCache == nil {
		return
	}
	s.calCacheMu.Lock()
	delete(s.calCache, name)
	s.calCacheMu.Unlock()
}

// --- Counts / listings -------------------------------------------------------

func (s *Store) GetNumberOfJobs(ctx context.Context) (int, error) {
	var n int
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectNumJobs(ctx, tx)
		n = v
		return nil, err
	})
	return n, err
}

func (s *Store) GetNumberOfTriggers(ctx context.Context) (int, error) {
	var n int
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectNumTriggers(ctx, tx)
		n = v
		return nil, err
	})
	return n, err
}

func (s *Store) GetNumberOfCalendars(ctx context.Context) (int, error) {
	var n int
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectNumCalendars(ctx, tx)
		n = v
		return nil, err
	})
	return n, err
}

func (s *Store) GetJobKeys(ctx context.Context, m key.GroupMatcher) ([]key.JobKey, error) {
	var out []key.JobKey
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectJobKeys(ctx, tx, m)
		out = v
		return nil, err
	})
	return out, err
}

func (s *Store) GetTriggerKeys(ctx context.Context, m key.GroupMatcher) ([]key.TriggerKey, error) {
	var out []key.TriggerKey
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectTriggerKeys(ctx, tx, m)
		out = v
		return nil, err
	})
	return out, err
}

func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	var out []string
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectJobGroups(ctx, tx)
		out = v
		return nil, err
	})
	return out, err
}

func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	var out []string
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectTriggerGroups(ctx, tx)
		out = v
		return nil, err
	})
	return out, err
}

func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	var out []string
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		cals, err := s.delegate.SelectCalendars(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, c := range cals {
			out = append(out, c.Name)
		}
		return nil, nil
	})
	return out, err
}

func (s *Store) GetTriggersForJob(ctx context.Context, jk key.JobKey) ([]*model.Trigger, error) {
	var out []*model.Trigger
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
		out = v
		return nil, err
	})
	return out, err
}

func (s *Store) GetPausedTriggerGroups(ctx context.Context) ([]string, error) {
	var out []string
	err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		v, err := s.delegate.SelectPausedTriggerGroups(ctx, tx)
		out = v
		return nil, err
	})
	return out, err
}

// ClearAllSchedulingData wipes every job, trigger, calendar, FiredTrigger
// and paused-group entry for this scheduler name.
func (s *Store) ClearAllSchedulingData(ctx context.Context) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if err := s.delegate.ClearData(ctx, tx); err != nil {
			return nil, err
		}
		s.calCacheMu.Lock()
		if s.calCache != nil {
			s.calCache = make(map[string]calendar.Calendar)
		}
		s.calCacheMu.Unlock()
		return nil, nil
	}, nil)
}

func (s *Store) nextFireInstanceID() string {
	n := s.fireSeq.Add(1)
	return fmt.Sprintf("%s-%d", s.cfg.InstanceID, n)
}
