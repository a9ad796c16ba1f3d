package store

import (
	"context"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/statemachine"
	"github.com/coreclock/jobstore/internal/txrunner"
)

// PauseTrigger implements pauseTrigger.
func (s *Store) PauseTrigger(ctx context.Context, k key.TriggerKey) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		t, err := s.delegate.SelectTrigger(ctx, tx, k)
		if err != nil || t == nil {
			return nil, err
		}
		target := statemachine.PauseTarget(t.State)
		if target == t.State {
			return nil, nil
		}
		_, err = s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, k, target, t.State)
		return nil, err
	}, nil)
}

// PauseTriggers implements pauseTriggers(groupMatcher): bulk Waiting|Acquired
// -> Paused and Blocked -> PausedAndBlocked, plus a paused-group marker for
// every matched group (even an as-yet-empty exact-match group). Returns the
// affected group names.
func (s *Store) PauseTriggers(ctx context.Context, m key.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		gs, err := s.delegate.UpdateTriggerGroupStateFromOtherStates(ctx, tx, m, model.StatePaused, model.StateWaiting, model.StateAcquired)
		if err != nil {
			return nil, err
		}
		if _, err := s.delegate.UpdateTriggerGroupStateFromOtherState(ctx, tx, m, model.StatePausedAndBlocked, model.StateBlocked); err != nil {
			return nil, err
		}
		if m.Operator == key.OpEquals {
			gs = appendUnique(gs, m.CompareToValue)
			if err := s.delegate.InsertPausedTriggerGroup(ctx, tx, m.CompareToValue); err != nil {
				return nil, err
			}
		}
		for _, g := range gs {
			if m.Operator != key.OpEquals {
				if err := s.delegate.InsertPausedTriggerGroup(ctx, tx, g); err != nil {
					return nil, err
				}
			}
		}
		groups = gs
		return nil, nil
	}, nil)
	return groups, err
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// ResumeTrigger implements resumeTrigger: a Paused/PausedAndBlocked trigger
// returns to Waiting or Blocked per the Blocked check, with a misfire
// recomputation if its nextFireTime has already slipped.
func (s *Store) ResumeTrigger(ctx context.Context, k key.TriggerKey) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		t, err := s.delegate.SelectTrigger(ctx, tx, k)
		if err != nil || t == nil {
			return nil, err
		}
		if t.State != model.StatePaused && t.State != model.StatePausedAndBlocked {
			return nil, nil
		}
		return nil, s.resumeOneTrigger(ctx, tx, t)
	}, nil)
}

func (s *Store) resumeOneTrigger(ctx context.Context, tx delegate.Tx, t *model.Trigger) error {
	job, err := s.delegate.SelectJobDetail(ctx, tx, t.JobKey)
	if err != nil {
		return err
	}
	blocking := false
	if job != nil && job.ConcurrentExecutionDisallowed {
		blocking, err = s.hasBlockingFiredTrigger(ctx, tx, job.Key)
		if err != nil {
			return err
		}
	}
	target := statemachine.ResumeTarget(t.State, job != nil && job.ConcurrentExecutionDisallowed, blocking)
	_, err = s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, target, t.State)
	return err
}

// hasBlockingFiredTrigger reports whether a non-Acquired FiredTrigger row
// exists for jk (the Blocked check), with the ambiguous job-identity
// predicate resolved to JobName==jk.Name AND JobGroup==jk.Group.
func (s *Store) hasBlockingFiredTrigger(ctx context.Context, tx delegate.Tx, jk key.JobKey) (bool, error) {
	rows, err := s.delegate.SelectFiredTriggerRecordsForJob(ctx, tx, jk)
	if err != nil {
		return false, err
	}
	for _, f := range rows {
		if f.JobKey.Name == jk.Name && f.JobGroup == jk.Group && f.State != model.StateAcquired {
			return true, nil
		}
	}
	return false, nil
}

// ResumeTriggers implements resumeTriggers(matcher): each matched trigger in
// Paused or PausedAndBlocked is resumed on its own through resumeOneTrigger,
// which applies the Blocked check, and the paused-group marker is deleted
// for matched groups.
func (s *Store) ResumeTriggers(ctx context.Context, m key.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		keys, err := s.delegate.SelectTriggerKeys(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, tk := range keys {
			t, err := s.delegate.SelectTrigger(ctx, tx, tk)
			if err != nil || t == nil {
				continue
			}
			if t.State == model.StatePaused || t.State == model.StatePausedAndBlocked {
				if err := s.resumeOneTrigger(ctx, tx, t); err != nil {
					return nil, err
				}
			}
			if !seen[t.Key.Group] {
				seen[t.Key.Group] = true
				groups = append(groups, t.Key.Group)
			}
		}
		if m.Operator == key.OpEquals {
			if err := s.delegate.DeletePausedTriggerGroup(ctx, tx, m.CompareToValue); err != nil {
				return nil, err
			}
		} else {
			for _, g := range groups {
				if err := s.delegate.DeletePausedTriggerGroup(ctx, tx, g); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	}, nil)
	return groups, err
}

// PauseJob pauses every trigger of a job.
func (s *Store) PauseJob(ctx context.Context, jk key.JobKey) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
		if err != nil {
			return nil, err
		}
		for _, t := range triggers {
			target := statemachine.PauseTarget(t.State)
			if target == t.State {
				continue
			}
			if _, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, target, t.State); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, nil)
}

// PauseJobs pauses every trigger of every job in matched groups, and marks
// those job groups paused so triggers stored later for their jobs land
// paused too.
func (s *Store) PauseJobs(ctx context.Context, m key.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		jobKeys, err := s.delegate.SelectJobKeys(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, jk := range jobKeys {
			triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
			if err != nil {
				return nil, err
			}
			for _, t := range triggers {
				target := statemachine.PauseTarget(t.State)
				if target == t.State {
					continue
				}
				if _, err := s.delegate.UpdateTriggerStateFromOtherState(ctx, tx, t.Key, target, t.State); err != nil {
					return nil, err
				}
			}
			if !seen[jk.Group] {
				seen[jk.Group] = true
				groups = append(groups, jk.Group)
				if err := s.delegate.InsertPausedJobGroup(ctx, tx, jk.Group); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	}, nil)
	return groups, err
}

// ResumeJob resumes every trigger of a job.
func (s *Store) ResumeJob(ctx context.Context, jk key.JobKey) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
		if err != nil {
			return nil, err
		}
		for _, t := range triggers {
			if t.State == model.StatePaused || t.State == model.StatePausedAndBlocked {
				if err := s.resumeOneTrigger(ctx, tx, t); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	}, nil)
}

// ResumeJobs resumes every trigger of every job in matched groups and clears
// the matching entries from pausedJobGroups.
func (s *Store) ResumeJobs(ctx context.Context, m key.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		jobKeys, err := s.delegate.SelectJobKeys(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, jk := range jobKeys {
			triggers, err := s.delegate.SelectTriggersForJob(ctx, tx, jk)
			if err != nil {
				return nil, err
			}
			for _, t := range triggers {
				if t.State == model.StatePaused || t.State == model.StatePausedAndBlocked {
					if err := s.resumeOneTrigger(ctx, tx, t); err != nil {
						return nil, err
					}
				}
			}
			if !seen[jk.Group] {
				seen[jk.Group] = true
				groups = append(groups, jk.Group)
				if err := s.delegate.DeletePausedJobGroup(ctx, tx, jk.Group); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	}, nil)
	return groups, err
}

// PauseAll pauses every trigger group and inserts the all-groups sentinel.
func (s *Store) PauseAll(ctx context.Context) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		groups, err := s.delegate.SelectTriggerGroups(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if _, err := s.delegate.UpdateTriggerGroupStateFromOtherStates(ctx, tx, key.GroupEquals(g), model.StatePaused, model.StateWaiting, model.StateAcquired); err != nil {
				return nil, err
			}
			if _, err := s.delegate.UpdateTriggerGroupStateFromOtherState(ctx, tx, key.GroupEquals(g), model.StatePausedAndBlocked, model.StateBlocked); err != nil {
				return nil, err
			}
			if err := s.delegate.InsertPausedTriggerGroup(ctx, tx, g); err != nil {
				return nil, err
			}
		}
		return nil, s.delegate.InsertPausedTriggerGroup(ctx, tx, model.AllGroupsPausedSentinel)
	}, nil)
}

// ResumeAll deletes the all-groups sentinel and resumes every group.
func (s *Store) ResumeAll(ctx context.Context) error {
	return s.runner.ExecuteInLock(ctx, txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		if err := s.delegate.DeleteAllPausedTriggerGroups(ctx, tx); err != nil {
			return nil, err
		}
		groups, err := s.delegate.SelectTriggerGroups(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			keys, err := s.delegate.SelectTriggerKeys(ctx, tx, key.GroupEquals(g))
			if err != nil {
				return nil, err
			}
			for _, tk := range keys {
				t, err := s.delegate.SelectTrigger(ctx, tx, tk)
				if err != nil || t == nil {
					continue
				}
				if t.State == model.StatePaused || t.State == model.StatePausedAndBlocked {
					if err := s.resumeOneTrigger(ctx, tx, t); err != nil {
						return nil, err
					}
				}
			}
		}
		return nil, nil
	}, nil)
}
