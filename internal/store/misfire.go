package store

import (
	"context"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/metrics"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// RecoverMisfires implements the misfire handler's outer loop: a cheap unlocked peek, then a locked recovery pass if anything is
// found. Returns whether more misfired triggers remain beyond one page (the
// caller should re-run immediately if so).
func (s *Store) RecoverMisfires(ctx context.Context) (hasMoreToDo bool, err error) {
	misfireTime := s.misfireTime()

	if s.cfg.DoubleCheckLockMisfireHandler {
		var count int
		err := s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
			n, err := s.delegate.CountMisfiredTriggersInState(ctx, tx, model.StateWaiting, misfireTime)
			count = n
			return nil, err
		})
		if err != nil {
			return false, err
		}
		if count == 0 {
			return false, nil
		}
	}

	err = s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		more, signal, err := s.recoverMisfiredJobs(ctx, tx, false)
		hasMoreToDo = more
		return signal, err
	}, nil)
	return hasMoreToDo, err
}

func (s *Store) misfireTime() time.Time {
	t := s.now().Add(-s.cfg.MisfireThreshold)
	if t.After(s.now()) {
		return s.now()
	}
	return t
}

// recoverMisfiredJobs fetches up to MaxMisfiresToHandleAtATime misfired
// Waiting triggers and applies the misfire policy to each. recovering is
// passed on to storeTrigger; the recoverJobs startup path sets it and calls
// this once per page, up to MaxDoLoopRetry times.
func (s *Store) recoverMisfiredJobs(ctx context.Context, tx delegate.Tx, recovering bool) (hasMoreToDo bool, signal *time.Time, err error) {
	misfireTime := s.misfireTime()
	pageSize := s.cfg.MaxMisfiresToHandleAtATime
	keys, hasMore, err := s.delegate.SelectMisfiredTriggersInState(ctx, tx, model.StateWaiting, misfireTime, pageSize)
	if err != nil {
		return false, nil, err
	}

	for _, tk := range keys {
		t, err := s.delegate.SelectTrigger(ctx, tx, tk)
		if err != nil {
			return false, nil, err
		}
		if t == nil || t.State != model.StateWaiting {
			continue
		}
		metrics.MisfiresDetectedTotal.Inc()

		cal, err := s.loadCalendar(ctx, tx, t.CalendarName)
		if err != nil {
			return false, nil, err
		}
		sched, err := s.schedules.Hydrate(t.ScheduleType, t.ScheduleData)
		if err != nil {
			return false, nil, err
		}

		if s.runner.Signaler != nil {
			s.runner.Signaler.NotifyTriggerListenersMisfired(t)
		}

		if t.MisfireInstruction == model.MisfireIgnore {
			// Leave nextFireTime untouched; it fires at its originally-scheduled
			// (now-past) time on this same pass.
			continue
		}

		next := sched.UpdateAfterMisfire(cal, t.MisfireInstruction, s.now())
		if m, err := sched.Marshal(); err == nil {
			t.ScheduleData = m
		}

		if next == nil {
			t.NextFireTime = nil
			if err := s.storeTrigger(ctx, tx, t, nil, true, model.StateComplete, true, recovering); err != nil {
				return false, nil, err
			}
			if s.runner.Signaler != nil {
				s.runner.Signaler.NotifySchedulerListenersFinalized(t)
			}
			metrics.MisfiresCompletedTotal.Inc()
			continue
		}
		t.NextFireTime = next
		if err := s.storeTrigger(ctx, tx, t, nil, true, model.StateWaiting, false, recovering); err != nil {
			return false, nil, err
		}
		signal = txrunner.EarliestSignal(signal, next)
		metrics.MisfiresRequeuedTotal.Inc()
	}

	return hasMore, signal, nil
}
