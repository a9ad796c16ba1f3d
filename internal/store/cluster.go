package store

import (
	"context"
	"fmt"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/metrics"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/triggertype"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// clusterFailureGrace is the fixed margin past a peer's checkin interval
// after which it is declared failed.
const clusterFailureGrace = 7500 * time.Millisecond

// CheckCluster implements checkCluster(requestorId): a cheap
// check-in scan, escalating to an authoritative locked re-scan and recovery
// of failed peers when warranted. Returns whether a recovery ran.
func (s *Store) CheckCluster(ctx context.Context) (recovered bool, err error) {
	start := s.now()
	defer func() { metrics.ClusterCheckinDuration.Observe(s.now().Sub(start).Seconds()) }()

	first := s.firstCheck.Load()

	var failed []*model.SchedulerStateRecord
	err = s.runner.ExecuteWithoutLock(ctx, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if !first {
			if err := s.checkIn(ctx, tx); err != nil {
				return nil, err
			}
		}
		f, err := s.scanForFailedInstances(ctx, tx)
		failed = f
		return nil, err
	})
	if err != nil {
		return false, err
	}

	if !first && len(failed) == 0 {
		return false, nil
	}

	err = s.runner.ExecuteInLock(ctx, txrunner.LockState, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if err := s.checkIn(ctx, tx); err != nil {
			return nil, err
		}
		f, err := s.scanForFailedInstances(ctx, tx)
		if err != nil {
			return nil, err
		}
		if first {
			orphans, err := s.scanForOrphanedFiredTriggerInstances(ctx, tx)
			if err != nil {
				return nil, err
			}
			f = append(f, orphans...)
		}
		failed = f

		if len(failed) == 0 {
			return nil, nil
		}
		return nil, s.recoverFailedInstances(ctx, failed)
	}, nil)
	if err != nil {
		return false, err
	}

	recovered = len(failed) > 0
	if recovered {
		metrics.ClusterRecoveriesTotal.Inc()
		metrics.ClusterFailedInstancesTotal.Add(float64(len(failed)))
	}
	s.firstCheck.Store(false)
	return recovered, nil
}

func (s *Store) checkIn(ctx context.Context, tx delegate.Tx) error {
	rec := &model.SchedulerStateRecord{
		SchedulerName: s.cfg.InstanceName,
		InstanceID: s.cfg.InstanceID,
		LastCheckinTime: s.now(),
		CheckinInterval: s.cfg.ClusterCheckinInterval,
	}
	ok, err := s.delegate.UpdateSchedulerState(ctx, tx, rec)
	if err != nil {
		return err
	}
	if !ok {
		return s.delegate.InsertSchedulerState(ctx, tx, rec)
	}
	return nil
}

// scanForFailedInstances applies the failure detection formula:
// failedIfAfter(rec) = rec.lastCheckin + max(rec.checkinInterval, now - ourLastCheckin) + 7500ms.
func (s *Store) scanForFailedInstances(ctx context.Context, tx delegate.Tx) ([]*model.SchedulerStateRecord, error) {
	recs, err := s.delegate.SelectSchedulerStateRecords(ctx, tx, s.cfg.InstanceName)
	if err != nil {
		return nil, err
	}

	var ourLastCheckin time.Time
	for _, r := range recs {
		if r.InstanceID == s.cfg.InstanceID {
			ourLastCheckin = r.LastCheckinTime
		}
	}
	sinceOurs := s.now().Sub(ourLastCheckin)
	if sinceOurs < 0 {
		sinceOurs = 0
	}

	var failed []*model.SchedulerStateRecord
	for _, r := range recs {
		if r.InstanceID == s.cfg.InstanceID {
			continue
		}
		margin := r.CheckinInterval
		if sinceOurs > margin {
			margin = sinceOurs
		}
		failAfter := r.LastCheckinTime.Add(margin).Add(clusterFailureGrace)
		if s.now().After(failAfter) {
			failed = append(failed, r)
		}
	}
	return failed, nil
}

// scanForOrphanedFiredTriggerInstances finds instance ids with FiredTrigger
// rows but no SchedulerState row: a peer that never checked in again after
// crashing before its first check-in landed.
func (s *Store) scanForOrphanedFiredTriggerInstances(ctx context.Context, tx delegate.Tx) ([]*model.SchedulerStateRecord, error) {
	names, err := s.delegate.SelectFiredTriggerInstanceNames(ctx, tx)
	if err != nil {
		return nil, err
	}
	recs, err := s.delegate.SelectSchedulerStateRecords(ctx, tx, s.cfg.InstanceName)
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, r := range recs {
		known[r.InstanceID] = true
	}
	var orphans []*model.SchedulerStateRecord
	for _, id := range names {
		if id == s.cfg.InstanceID || known[id] {
			continue
		}
		orphans = append(orphans, &model.SchedulerStateRecord{SchedulerName: s.cfg.InstanceName, InstanceID: id})
	}
	return orphans, nil
}

func (s *Store) recoverFailedInstances(ctx context.Context, failed []*model.SchedulerStateRecord) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		for _, f := range failed {
			if err := s.clusterRecover(ctx, tx, f.InstanceID); err != nil {
				return nil, err
			}
		}
		return ptrTime(s.now()), nil
	}, nil)
}

// clusterRecover reassigns or requeues everything a failed peer left behind:
// Blocked/PausedAndBlocked triggers for its jobs return to Waiting/Paused,
// its Acquired triggers return to Waiting, a RequestsRecovery job gets a
// one-shot recovery fire, and its FiredTrigger rows are deleted.
func (s *Store) clusterRecover(ctx context.Context, tx delegate.Tx, failedInstanceID string) error {
	rows, err := s.delegate.SelectInstancesFiredTriggerRecords(ctx, tx, failedInstanceID)
	if err != nil {
		return err
	}

	touched := map[key.TriggerKey]bool{}
	for _, f := range rows {
		touched[f.TriggerKey] = true

		switch f.State {
		case model.StateBlocked:
			if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, f.JobKey, model.StateWaiting, model.StateBlocked); err != nil {
				return err
			}
		case model.StatePausedAndBlocked:
			if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, f.JobKey, model.StatePaused, model.StatePausedAndBlocked); err != nil {
				return err
			}
		case model.StateAcquired:
			if _, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, f.TriggerKey, model.StateWaiting, model.StateAcquired); err != nil {
				return err
			}
		default:
			if f.RequestsRecovery {
				if exists, err := s.delegate.JobExists(ctx, tx, f.JobKey); err == nil && exists {
					if err := s.scheduleRecoveryFire(ctx, tx, f); err != nil {
						return err
					}
				}
			}
		}

		if f.IsNonConcurrent {
			if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, f.JobKey, model.StateWaiting, model.StateBlocked); err != nil {
				return err
			}
			if _, err := s.delegate.UpdateTriggerStatesForJobFromOtherState(ctx, tx, f.JobKey, model.StatePaused, model.StatePausedAndBlocked); err != nil {
				return err
			}
		}
	}

	if _, err := s.delegate.DeleteFiredTriggersForInstance(ctx, tx, failedInstanceID); err != nil {
		return err
	}

	for tk := range touched {
		t, err := s.delegate.SelectTrigger(ctx, tx, tk)
		if err != nil {
			return err
		}
		if t == nil || t.State != model.StateComplete {
			continue
		}
		remaining, err := s.delegate.SelectFiredTriggerRecords(ctx, tx, tk)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if _, err := s.delegate.DeleteTrigger(ctx, tx, tk); err != nil {
				return err
			}
		}
	}

	if failedInstanceID != s.cfg.InstanceID {
		if _, err := s.delegate.DeleteSchedulerState(ctx, tx, failedInstanceID); err != nil {
			return err
		}
	}
	return nil
}

// scheduleRecoveryFire builds a fresh immediate-fire simple trigger in
// RecoveryGroup recording the failed fire's original identity, so the job
// can inspect JobDataMap and decide how to react to the interrupted run.
func (s *Store) scheduleRecoveryFire(ctx context.Context, tx delegate.Tx, f *model.FiredTrigger) error {
	now := s.now()
	sched := &triggertype.SimpleSchedule{StartTime: now, RepeatCount: 0}
	data, err := sched.Marshal()
	if err != nil {
		return err
	}
	recovery := &model.Trigger{
		Key:                 key.MustNew(fmt.Sprintf("recover-%s-%s", f.TriggerKey.Name, f.FireInstanceID), model.RecoveryGroup),
		SchedulerName:       s.cfg.InstanceName,
		JobKey:              f.JobKey,
		Priority:            f.Priority,
		NextFireTime:        &now,
		MisfireInstruction:  model.MisfireIgnore,
		ScheduleType:        sched.Type(),
		ScheduleData:        data,
		JobDataMap: map[string]any{
			"recovery.original.trigger.name":  f.TriggerKey.Name,
			"recovery.original.trigger.group": f.TriggerKey.Group,
			"recovery.scheduled.fire.time":    f.ScheduledTime,
		},
	}
	return s.storeTrigger(ctx, tx, recovery, nil, false, model.StateWaiting, true, true)
}
