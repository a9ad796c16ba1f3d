package store

import (
	"context"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// recoverJobs runs the startup recovery pass: unblock
// in-flight triggers left over from a crash, run a full misfire pass, fire
// one-shot recovery triggers for jobs that requested recovery, drop
// lingering Complete triggers, and clear this instance's FiredTrigger rows.
func (s *Store) recoverJobs(ctx context.Context) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if _, err := s.delegate.UpdateTriggerStatesFromOtherStates(ctx, tx, model.StateWaiting, model.StateAcquired, model.StateBlocked); err != nil {
			return nil, err
		}
		if _, err := s.delegate.UpdateTriggerStatesFromOtherStates(ctx, tx, model.StatePaused, model.StatePausedAndBlocked); err != nil {
			return nil, err
		}

		var signal *time.Time
		// Bounded like acquireNextTriggers' MaxDoLoopRetry: Ignore-instruction
		// misfires are left untouched by design, so a page full of them would
		// otherwise make hasMoreToDo stick at true forever.
		for attempt := 0; attempt < MaxDoLoopRetry; attempt++ {
			more, sig, err := s.recoverMisfiredJobs(ctx, tx, true)
			signal = txrunner.EarliestSignal(signal, sig)
			if err != nil {
				return nil, err
			}
			if !more {
				break
			}
		}

		if err := s.recoverRequestedJobs(ctx, tx); err != nil {
			return nil, err
		}

		completed, err := s.delegate.SelectTriggersInState(ctx, tx, model.StateComplete)
		if err != nil {
			return nil, err
		}
		for _, t := range completed {
			if _, err := s.delegate.DeleteTrigger(ctx, tx, t.Key); err != nil {
				return nil, err
			}
		}

		if _, err := s.delegate.DeleteFiredTriggersForInstance(ctx, tx, s.cfg.InstanceID); err != nil {
			return nil, err
		}

		return signal, nil
	}, nil)
}

// recoverRequestedJobs gives every job that requested recovery a fresh
// computeFirstFireTime pass over each of its triggers, marked recovering.
func (s *Store) recoverRequestedJobs(ctx context.Context, tx delegate.Tx) error {
	jobKeys, err := s.delegate.SelectJobKeys(ctx, tx, key.AnyGroup())
	if err != nil {
		return err
	}
	for _, jk := range jobKeys {
		job, err := s.delegate.SelectJobDetail(ctx, tx, jk)
		if err != nil || job == nil || !job.RequestsRecovery {
			continue
		}
		triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
		if err != nil {
			return err
		}
		for _, t := range triggers {
			sched, err := s.schedules.Hydrate(t.ScheduleType, t.ScheduleData)
			if err != nil {
				return err
			}
			t.NextFireTime = sched.ComputeFirstFireTime(nil, s.now())
			if err := s.storeTrigger(ctx, tx, t, nil, true, model.StateWaiting, true, true); err != nil {
				return err
			}
		}
	}
	return nil
}
