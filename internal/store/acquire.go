package store

import (
	"context"
	"strconv"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/metrics"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// MaxDoLoopRetry bounds the acquire loop's restarts when a candidate batch
// yields nothing acceptable.
const MaxDoLoopRetry = 3

// AcquireNextTriggers implements the hot-path selection algorithm. It runs under TRIGGER_ACCESS when clustered, maxCount > 1, or
// AcquireTriggersWithinLock is set; otherwise it runs unlocked.
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*model.Trigger, error) {
	lockType := txrunner.LockNone
	if s.cfg.Clustered || maxCount > 1 || s.cfg.AcquireTriggersWithinLock {
		lockType = txrunner.LockTrigger
	}

	start := s.now()
	var result []*model.Trigger
	err := s.runner.ExecuteInLock(ctx, lockType, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		triggers, err := s.acquireNextTriggers(ctx, tx, noLaterThan, maxCount, timeWindow)
		result = triggers
		return nil, err
	}, s.acquireValidator(&result))
	metrics.AcquireDuration.Observe(s.now().Sub(start).Seconds())
	if err == nil {
		metrics.TriggersAcquiredTotal.Add(float64(len(result)))
		metrics.FiredTriggersInFlight.Add(float64(len(result)))
	}
	return result, err
}

func (s *Store) acquireValidator(result *[]*model.Trigger) txrunner.Validator {
	return func(ctx context.Context, tx delegate.Tx) bool {
		// Re-check that every returned trigger is indeed Acquired; if so the
		// commit actually succeeded before the error surfaced.
		for _, t := range *result {
			state, err := s.delegate.SelectTriggerState(ctx, tx, t.Key)
			if err != nil || state != model.StateAcquired {
				return false
			}
		}
		return len(*result) > 0
	}
}

func (s *Store) acquireNextTriggers(ctx context.Context, tx delegate.Tx, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*model.Trigger, error) {
	misfireTime := s.now().Add(-s.cfg.MisfireThreshold)
	if misfireTime.After(s.now()) {
		misfireTime = s.now()
	}

	batchEnd := noLaterThan
	var acquired []*model.Trigger
	claimedJobs := map[string]bool{}

	for attempt := 0; attempt < MaxDoLoopRetry; attempt++ {
		keys, err := s.delegate.SelectTriggerToAcquire(ctx, tx, batchEnd.Add(timeWindow), misfireTime, maxCount)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			break
		}

		progressed := false
		for _, tk := range keys {
			if len(acquired) >= maxCount {
				break
			}
			t, err := s.delegate.SelectTrigger(ctx, tx, tk)
			if err != nil {
				return nil, err
			}
			if t == nil || t.NextFireTime == nil {
				continue
			}

			misfired, err := s.applyMisfireIfDue(ctx, tx, t, misfireTime)
			if err != nil {
				return nil, err
			}
			if misfired == misfireDropped {
				continue
			}
			if misfired == misfireRequeued {
				progressed = true
				continue
			}

			if t.NextFireTime.After(batchEnd) {
				continue
			}

			job, err := s.delegate.SelectJobDetail(ctx, tx, t.JobKey)
			if err != nil {
				return nil, err
			}
			if job == nil {
				if _, err := s.delegate.UpdateTriggerState(ctx, tx, t.Key, model.StateError); err != nil {
					return nil, err
				}
				progressed = true
				continue
			}

			if job.ConcurrentExecutionDisallowed {
				jk := job.Key.String()
				if claimedJobs[jk] {
					continue
				}
				claimedJobs[jk] = true
			}

			ok, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, model.StateAcquired, model.StateWaiting)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			t.State = model.StateAcquired
			t.FireInstanceID = s.nextFireInstanceID()
			if err := s.delegate.UpdateTrigger(ctx, tx, t); err != nil {
				return nil, err
			}

			fired := &model.FiredTrigger{
				FireInstanceID: t.FireInstanceID,
				SchedulerName: s.cfg.InstanceName,
				InstanceID: s.cfg.InstanceID,
				TriggerKey: t.Key,
				JobKey: job.Key,
				JobGroup: job.Key.Group,
				State: model.StateAcquired,
				Priority: t.Priority,
				FiredTime: s.now(),
				ScheduledTime: *t.NextFireTime,
				IsNonConcurrent: job.ConcurrentExecutionDisallowed,
				RequestsRecovery: job.RequestsRecovery,
			}
			if err := s.delegate.InsertFiredTrigger(ctx, tx, fired); err != nil {
				return nil, err
			}

			acquired = append(acquired, t)
			progressed = true

			extend := t.NextFireTime
			if s.now().After(*extend) {
				extend = ptrTime(s.now())
			}
			batchEnd = extend.Add(timeWindow)
		}

		if len(acquired) >= maxCount {
			break
		}
		if !progressed {
			break
		}
	}
	return acquired, nil
}

type misfireOutcome int

const (
	misfireNone misfireOutcome = iota
	misfireRequeued
	misfireDropped
)

// applyMisfireIfDue applies the misfire policy to t if its nextFireTime is
// before misfireTime, mutating t in place and persisting the result.
func (s *Store) applyMisfireIfDue(ctx context.Context, tx delegate.Tx, t *model.Trigger, misfireTime time.Time) (misfireOutcome, error) {
	if t.NextFireTime == nil || !t.NextFireTime.Before(misfireTime) {
		return misfireNone, nil
	}
	if t.MisfireInstruction == model.MisfireIgnore {
		// The store leaves nextFireTime untouched; it will fire at its
		// originally-scheduled (now-past) time on this same pass.
		return misfireNone, nil
	}

	cal, err := s.loadCalendar(ctx, tx, t.CalendarName)
	if err != nil {
		return misfireNone, err
	}
	sched, err := s.schedules.Hydrate(t.ScheduleType, t.ScheduleData)
	if err != nil {
		return misfireNone, err
	}
	next := sched.UpdateAfterMisfire(cal, t.MisfireInstruction, s.now())
	if m, err := sched.Marshal(); err == nil {
		t.ScheduleData = m
	}

	if next == nil {
		t.NextFireTime = nil
		t.State = model.StateComplete
		if err := s.delegate.UpdateTrigger(ctx, tx, t); err != nil {
			return misfireNone, err
		}
		return misfireDropped, nil
	}
	t.NextFireTime = next
	if err := s.delegate.UpdateTrigger(ctx, tx, t); err != nil {
		return misfireNone, err
	}
	return misfireRequeued, nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// ReleaseAcquiredTrigger implements releaseAcquiredTrigger:
// CAS Acquired -> Waiting, delete the FiredTrigger row. Retried until it
// succeeds or the store shuts down.
func (s *Store) ReleaseAcquiredTrigger(ctx context.Context, t *model.Trigger) error {
	err := s.runner.RetryExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if _, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, model.StateWaiting, model.StateAcquired); err != nil {
			return nil, err
		}
		if t.FireInstanceID != "" {
			if _, err := s.delegate.DeleteFiredTrigger(ctx, tx, t.FireInstanceID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil {
		metrics.FiredTriggersInFlight.Dec()
	}
	return err
}

// TriggersFired implements triggersFired.
func (s *Store) TriggersFired(ctx context.Context, triggers []*model.Trigger) ([]*model.FiredBundle, error) {
	var bundles []*model.FiredBundle
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		var signal *time.Time
		for _, in := range triggers {
			b, sig, err := s.fireOneTrigger(ctx, tx, in)
			if err != nil {
				return nil, err
			}
			if b != nil {
				bundles = append(bundles, b)
			}
			signal = txrunner.EarliestSignal(signal, sig)
		}
		return signal, nil
	}, s.firedValidator(&bundles))
	if err == nil {
		metrics.TriggersFiredTotal.Add(float64(len(bundles)))
	}
	return bundles, err
}

func (s *Store) firedValidator(bundles *[]*model.FiredBundle) txrunner.Validator {
	return func(ctx context.Context, tx delegate.Tx) bool {
		for _, b := range *bundles {
			state, err := s.delegate.SelectTriggerState(ctx, tx, b.Trigger.Key)
			if err != nil {
				return false
			}
			if state != model.StateWaiting && state != model.StateBlocked && state != model.StateComplete {
				return false
			}
		}
		return len(*bundles) > 0
	}
}

func (s *Store) fireOneTrigger(ctx context.Context, tx delegate.Tx, in *model.Trigger) (*model.FiredBundle, *time.Time, error) {
	t, err := s.delegate.SelectTrigger(ctx, tx, in.Key)
	if err != nil || t == nil || t.State != model.StateAcquired {
		return nil, nil, err
	}

	var calRec *model.Calendar
	if t.CalendarName != "" {
		calRec, err = s.delegate.SelectCalendar(ctx, tx, t.CalendarName)
		if err != nil {
			return nil, nil, err
		}
		if calRec == nil {
			return nil, nil, nil
		}
	}
	calVal, err := s.loadCalendar(ctx, tx, t.CalendarName)
	if err != nil {
		return nil, nil, err
	}

	sched, err := s.schedules.Hydrate(t.ScheduleType, t.ScheduleData)
	if err != nil {
		return nil, nil, err
	}
	prevFire := t.NextFireTime
	scheduledFireTime := s.now()
	next := sched.Triggered(calVal, scheduledFireTime)
	if m, err := sched.Marshal(); err == nil {
		t.ScheduleData = m
	}
	t.PreviousFireTime = prevFire
	t.NextFireTime = next

	job, err := s.delegate.SelectJobDetail(ctx, tx, t.JobKey)
	if err != nil || job == nil {
		return nil, nil, err
	}

	firedRows, err := s.delegate.SelectFiredTriggerRecords(ctx, tx, t.Key)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range firedRows {
		if f.FireInstanceID == t.FireInstanceID {
			f.State = model.StateExecuting
			f.JobDataMap = t.JobDataMap
			if err := s.delegate.UpdateFiredTrigger(ctx, tx, f); err != nil {
				return nil, nil, err
			}
			break
		}
	}

	var postState model.TriggerState
	force := false
	switch {
	case next == nil:
		postState = model.StateComplete
		force = true
	case job.ConcurrentExecutionDisallowed:
		postState = model.StateBlocked
	default:
		postState = model.StateWaiting
	}
	t.State = postState
	if err := s.delegate.UpdateTrigger(ctx, tx, t); err != nil {
		return nil, nil, err
	}

	if job.ConcurrentExecutionDisallowed {
		if err := s.blockSiblingTriggers(ctx, tx, job.Key, t.Key); err != nil {
			return nil, nil, err
		}
	}

	bundle := &model.FiredBundle{
		Job: job,
		Trigger: t,
		Calendar: calRec,
		IsRecovering: t.Key.Group == model.RecoveryGroup,
		ScheduledFireTime: scheduledFireTime,
		PrevFireTime: prevFire,
		NextFireTime: next,
	}
	return bundle, next, nil
}

// blockSiblingTriggers bulk-updates every other trigger of jk into its
// Blocked counterpart.
func (s *Store) blockSiblingTriggers(ctx context.Context, tx delegate.Tx, jk key.JobKey, except key.TriggerKey) error {
	siblings, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
	if err != nil {
		return err
	}
	for _, t := range siblings {
		if t.Key == except {
			continue
		}
		var target model.TriggerState
		switch t.State {
		case model.StateWaiting, model.StateAcquired:
			target = model.StateBlocked
		case model.StatePaused:
			target = model.StatePausedAndBlocked
		default:
			continue
		}
		if _, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, target, t.State); err != nil {
			return err
		}
	}
	return nil
}

// TriggeredJobComplete implements triggeredJobComplete.
// Retried indefinitely on transient failures.
func (s *Store) TriggeredJobComplete(ctx context.Context, t *model.Trigger, job *model.Job, instruction model.CompletionInstruction) error {
	err := s.runner.RetryExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return s.triggeredJobComplete(ctx, tx, t, job, instruction)
	})
	if err == nil {
		metrics.TriggersCompletedTotal.WithLabelValues(strconv.Itoa(int(instruction))).Inc()
		metrics.FiredTriggersInFlight.Dec()
	}
	return err
}

func (s *Store) triggeredJobComplete(ctx context.Context, tx delegate.Tx, t *model.Trigger, job *model.Job, instruction model.CompletionInstruction) (*time.Time, error) {
	var signal *time.Time

	if job.ConcurrentExecutionDisallowed {
		if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, job.Key, model.StateWaiting, model.StateBlocked); err != nil {
			return nil, err
		}
		if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, job.Key, model.StatePaused, model.StatePausedAndBlocked); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, ptrTime(s.now()))
	}

	switch instruction {
	case model.InstructionDeleteTrigger:
		if t.NextFireTime == nil {
			stored, err := s.delegate.SelectTrigger(ctx, tx, t.Key)
			if err != nil {
				return nil, err
			}
			if stored != nil && stored.NextFireTime != nil {
				// A reschedule during execution overrides the delete.
				break
			}
			if _, err := s.removeTrigger(ctx, tx, t.Key); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.removeTrigger(ctx, tx, t.Key); err != nil {
				return nil, err
			}
			signal = txrunner.EarliestSignal(signal, t.NextFireTime)
		}
	case model.InstructionSetTriggerComplete:
		if _, err := s.delegate.UpdateTriggerState(ctx, tx, t.Key, model.StateComplete); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, ptrTime(s.now()))
	case model.InstructionSetTriggerError:
		if _, err := s.delegate.UpdateTriggerState(ctx, tx, t.Key, model.StateError); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, ptrTime(s.now()))
	case model.InstructionSetAllJobTriggersComplete:
		if _, err := s.delegate.UpdateTriggerStatesForJob(ctx, tx, job.Key, model.StateComplete); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, ptrTime(s.now()))
	case model.InstructionSetAllJobTriggersError:
		if _, err := s.delegate.UpdateTriggerStatesForJob(ctx, tx, job.Key, model.StateError); err != nil {
			return nil, err
		}
		signal = txrunner.EarliestSignal(signal, ptrTime(s.now()))
	}

	if job.PersistJobDataAfterExecution {
		if err := s.delegate.UpdateJobDetail(ctx, tx, job); err != nil {
			return nil, err
		}
	}

	if t.FireInstanceID != "" {
		if _, err := s.delegate.DeleteFiredTrigger(ctx, tx, t.FireInstanceID); err != nil {
			return nil, err
		}
	}

	return signal, nil
}
