// Package memory implements the Delegate port entirely
// in-process, the role RAMJobStore plays in the Quartz family: no external
// back-end, useful for tests and for running unclustered without a
// database. Each call takes the store's mutex for its own duration — there
// is no real multi-call transaction isolation, matching RAMJobStore's single
// coarse lock rather than simulating a relational transaction log.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
)

type tx struct{}

// Store is the in-memory Delegate implementation.
type Store struct {
	mu sync.Mutex

	schedulerName string

	jobs map[string]model.Job
	triggers map[string]model.Trigger
	calendars map[string]model.Calendar
	fired map[string]model.FiredTrigger // by fireInstanceID

	pausedTriggerGroups map[string]bool
	pausedJobGroups map[string]bool

	schedulerStates map[string]model.SchedulerStateRecord // by instanceID

	locks map[string]bool // lockName -> held (single-process, uncontended in memory delegate)
}

// New returns an empty in-memory Delegate scoped to schedulerName.
func New(schedulerName string) *Store {
	return &Store{
		schedulerName: schedulerName,
		jobs: make(map[string]model.Job),
		triggers: make(map[string]model.Trigger),
		calendars: make(map[string]model.Calendar),
		fired: make(map[string]model.FiredTrigger),
		pausedTriggerGroups: make(map[string]bool),
		pausedJobGroups: make(map[string]bool),
		schedulerStates: make(map[string]model.SchedulerStateRecord),
		locks: make(map[string]bool),
	}
}

var _ delegate.Delegate = (*Store)(nil)

func (s *Store) Begin(_ context.Context) (delegate.Tx, error) { return &tx{}, nil }
func (s *Store) Commit(_ context.Context, _ delegate.Tx) error { return nil }
func (s *Store) Rollback(_ context.Context, _ delegate.Tx) error { return nil }

// ObtainLock never blocks: it only records lockName in s.locks. The
// in-process lock.Manager already serializes callers before the memory
// delegate is invoked for the same lock name.
func (s *Store) ObtainLock(_ context.Context, _ delegate.Tx, _, lockName, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lockName] = true
	return nil
}

func jobStoreKey(k key.JobKey) string { return k.Group + "/" + k.Name }
func trigStoreKey(k key.TriggerKey) string { return k.Group + "/" + k.Name }

func (s *Store) JobExists(_ context.Context, _ delegate.Tx, k key.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobStoreKey(k)]
	return ok, nil
}

func (s *Store) TriggerExists(_ context.Context, _ delegate.Tx, k key.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[trigStoreKey(k)]
	return ok, nil
}

func (s *Store) CalendarExists(_ context.Context, _ delegate.Tx, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calendars[name]
	return ok, nil
}

func (s *Store) CalendarIsReferenced(_ context.Context, _ delegate.Tx, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.triggers {
		if t.CalendarName == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SelectJobDetail(_ context.Context, _ delegate.Tx, k key.JobKey) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobStoreKey(k)]
	if !ok {
		return nil, nil
	}
	cp := j
	return &cp, nil
}

func (s *Store) SelectTrigger(_ context.Context, _ delegate.Tx, k key.TriggerKey) (*model.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[trigStoreKey(k)]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *Store) SelectTriggerState(_ context.Context, _ delegate.Tx, k key.TriggerKey) (model.TriggerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[trigStoreKey(k)]
	if !ok {
		return model.StateDeleted, nil
	}
	return t.State, nil
}

func (s *Store) SelectTriggerStatus(_ context.Context, _ delegate.Tx, k key.TriggerKey) (model.TriggerState, *time.Time, key.JobKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[trigStoreKey(k)]
	if !ok {
		return "", nil, key.JobKey{}, false, nil
	}
	return t.State, t.NextFireTime, t.JobKey, true, nil
}

func (s *Store) SelectTriggersForJob(_ context.Context, _ delegate.Tx, jk key.JobKey) ([]*model.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Trigger
	for _, t := range s.triggers {
		if t.JobKey == jk {
			cp := t
			out = append(out, &cp)
		}
	}
	sortTriggers(out)
	return out, nil
}

func (s *Store) SelectTriggerNamesForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey) ([]string, error) {
	ts, err := s.SelectTriggersForJob(ctx, tx, jk)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Key.Name)
	}
	return names, nil
}

func (s *Store) SelectTriggersForCalendar(_ context.Context, _ delegate.Tx, calName string) ([]*model.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Trigger
	for _, t := range s.triggers {
		if t.CalendarName == calName {
			cp := t
			out = append(out, &cp)
		}
	}
	sortTriggers(out)
	return out, nil
}

func (s *Store) SelectNumTriggersForJob(_ context.Context, _ delegate.Tx, jk key.JobKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.triggers {
		if t.JobKey == jk {
			n++
		}
	}
	return n, nil
}

func (s *Store) SelectTriggersInState(_ context.Context, _ delegate.Tx, state model.TriggerState) ([]*model.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Trigger
	for _, t := range s.triggers {
		if t.State == state {
			cp := t
			out = append(out, &cp)
		}
	}
	sortTriggers(out)
	return out, nil
}

// SelectTriggerToAcquire applies the acquire-candidate filter: state=Waiting,
// misfireTime < nextFireTime <= noLaterThan, ordered by nextFireTime
// ascending then priority descending.
func (s *Store) SelectTriggerToAcquire(_ context.Context, _ delegate.Tx, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []model.Trigger
	for _, t := range s.triggers {
		if t.State != model.StateWaiting || t.NextFireTime == nil {
			continue
		}
		if t.NextFireTime.After(noLaterThan) {
			continue
		}
		if !t.NextFireTime.After(misfireTime) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.NextFireTime.Equal(*b.NextFireTime) {
			return a.NextFireTime.Before(*b.NextFireTime)
		}
		return a.Priority > b.Priority
	})
	if maxCount > 0 && len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	keys := make([]key.TriggerKey, 0, len(candidates))
	for _, t := range candidates {
		keys = append(keys, t.Key)
	}
	return keys, nil
}

func (s *Store) SelectPausedTriggerGroups(_ context.Context, _ delegate.Tx) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeysBool(s.pausedTriggerGroups), nil
}

func (s *Store) SelectTriggerGroups(_ context.Context, _ delegate.Tx) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, t := range s.triggers {
		set[t.Key.Group] = true
	}
	return sortedKeysBool(set), nil
}

func (s *Store) SelectJobGroups(_ context.Context, _ delegate.Tx) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, j := range s.jobs {
		set[j.Key.Group] = true
	}
	return sortedKeysBool(set), nil
}

func (s *Store) SelectCalendars(_ context.Context, _ delegate.Tx) ([]*model.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Calendar, 0, len(s.calendars))
	for _, c := range s.calendars {
		cp := c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SelectCalendar(_ context.Context, _ delegate.Tx, name string) (*model.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[name]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (s *Store) SelectNumJobs(_ context.Context, _ delegate.Tx) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func (s *Store) SelectNumTriggers(_ context.Context, _ delegate.Tx) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers), nil
}

func (s *Store) SelectNumCalendars(_ context.Context, _ delegate.Tx) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calendars), nil
}

func (s *Store) SelectJobKeys(_ context.Context, _ delegate.Tx, m key.GroupMatcher) ([]key.JobKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []key.JobKey
	for _, j := range s.jobs {
		if m.IsMatch(j.Key.Group) {
			out = append(out, j.Key)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) SelectTriggerKeys(_ context.Context, _ delegate.Tx, m key.GroupMatcher) ([]key.TriggerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []key.TriggerKey
	for _, t := range s.triggers {
		if m.IsMatch(t.Key.Group) {
			out = append(out, t.Key)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) SelectSchedulerStateRecords(_ context.Context, _ delegate.Tx, schedulerName string) ([]*model.SchedulerStateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.SchedulerStateRecord, 0, len(s.schedulerStates))
	for _, r := range s.schedulerStates {
		if r.SchedulerName != schedulerName {
			continue
		}
		cp := r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SelectFiredTriggerRecords(_ context.Context, _ delegate.Tx, k key.TriggerKey) ([]*model.FiredTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FiredTrigger
	for _, f := range s.fired {
		if f.TriggerKey == k {
			cp := f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) SelectFiredTriggerRecordsForJob(_ context.Context, _ delegate.Tx, jk key.JobKey) ([]*model.FiredTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FiredTrigger
	for _, f := range s.fired {
		if f.JobKey == jk {
			cp := f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) SelectInstancesFiredTriggerRecords(_ context.Context, _ delegate.Tx, instanceID string) ([]*model.FiredTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FiredTrigger
	for _, f := range s.fired {
		if f.InstanceID == instanceID {
			cp := f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) SelectFiredTriggerInstanceNames(_ context.Context, _ delegate.Tx) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, f := range s.fired {
		set[f.InstanceID] = true
	}
	return sortedKeysBool(set), nil
}

func (s *Store) CountMisfiredTriggersInState(_ context.Context, _ delegate.Tx, state model.TriggerState, beforeTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.triggers {
		if t.State == state && t.NextFireTime != nil && t.NextFireTime.Before(beforeTime) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SelectMisfiredTriggersInState(_ context.Context, _ delegate.Tx, state model.TriggerState, beforeTime time.Time, maxCount int) ([]key.TriggerKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []model.Trigger
	for _, t := range s.triggers {
		if t.State == state && t.NextFireTime != nil && t.NextFireTime.Before(beforeTime) {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextFireTime.Before(*candidates[j].NextFireTime)
	})
	hasMore := maxCount > 0 && len(candidates) > maxCount
	if maxCount > 0 && len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	keys := make([]key.TriggerKey, 0, len(candidates))
	for _, t := range candidates {
		keys = append(keys, t.Key)
	}
	return keys, hasMore, nil
}

func (s *Store) SelectTriggerJobDataMap(_ context.Context, _ delegate.Tx, k key.TriggerKey) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[trigStoreKey(k)]
	if !ok {
		return nil, nil
	}
	return t.JobDataMap, nil
}

func (s *Store) InsertJobDetail(_ context.Context, _ delegate.Tx, j *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jk := jobStoreKey(j.Key)
	if _, ok := s.jobs[jk]; ok {
		return fmt.Errorf("%w: job %s", model.ErrObjectAlreadyExists, j.Key)
	}
	s.jobs[jk] = *j
	return nil
}

func (s *Store) UpdateJobDetail(_ context.Context, _ delegate.Tx, j *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobStoreKey(j.Key)] = *j
	return nil
}

func (s *Store) DeleteJobDetail(_ context.Context, _ delegate.Tx, jk key.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := jobStoreKey(jk)
	if _, ok := s.jobs[k]; !ok {
		return false, nil
	}
	delete(s.jobs, k)
	return true, nil
}

func (s *Store) InsertTrigger(_ context.Context, _ delegate.Tx, t *model.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := trigStoreKey(t.Key)
	if _, ok := s.triggers[tk]; ok {
		return fmt.Errorf("%w: trigger %s", model.ErrObjectAlreadyExists, t.Key)
	}
	s.triggers[tk] = *t
	return nil
}

func (s *Store) UpdateTrigger(_ context.Context, _ delegate.Tx, t *model.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[trigStoreKey(t.Key)] = *t
	return nil
}

func (s *Store) DeleteTrigger(_ context.Context, _ delegate.Tx, k key.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := trigStoreKey(k)
	if _, ok := s.triggers[tk]; !ok {
		return false, nil
	}
	delete(s.triggers, tk)
	return true, nil
}

func (s *Store) InsertCalendar(_ context.Context, _ delegate.Tx, c *model.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[c.Name]; ok {
		return fmt.Errorf("%w: calendar %s", model.ErrObjectAlreadyExists, c.Name)
	}
	s.calendars[c.Name] = *c
	return nil
}

func (s *Store) UpdateCalendar(_ context.Context, _ delegate.Tx, c *model.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[c.Name] = *c
	return nil
}

func (s *Store) DeleteCalendar(_ context.Context, _ delegate.Tx, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[name]; !ok {
		return false, nil
	}
	delete(s.calendars, name)
	return true, nil
}

func (s *Store) InsertFiredTrigger(_ context.Context, _ delegate.Tx, f *model.FiredTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[f.FireInstanceID] = *f
	return nil
}

func (s *Store) UpdateFiredTrigger(_ context.Context, _ delegate.Tx, f *model.FiredTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[f.FireInstanceID] = *f
	return nil
}

func (s *Store) DeleteFiredTrigger(_ context.Context, _ delegate.Tx, fireInstanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fired[fireInstanceID]; !ok {
		return false, nil
	}
	delete(s.fired, fireInstanceID)
	return true, nil
}

func (s *Store) DeleteFiredTriggersForInstance(_ context.Context, _ delegate.Tx, instanceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, f := range s.fired {
		if f.InstanceID == instanceID {
			delete(s.fired, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTriggerState(_ context.Context, _ delegate.Tx, k key.TriggerKey, newState model.TriggerState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := trigStoreKey(k)
	t, ok := s.triggers[tk]
	if !ok {
		return false, nil
	}
	t.State = newState
	s.triggers[tk] = t
	return true, nil
}

func (s *Store) UpdateTriggerStateFromOtherState(_ context.Context, _ delegate.Tx, k key.TriggerKey, newState, oldState model.TriggerState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := trigStoreKey(k)
	t, ok := s.triggers[tk]
	if !ok || t.State != oldState {
		return false, nil
	}
	t.State = newState
	s.triggers[tk] = t
	return true, nil
}

func (s *Store) UpdateTriggerStatesFromOtherStates(_ context.Context, _ delegate.Tx, newState model.TriggerState, oldStates...model.TriggerState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tk, t := range s.triggers {
		if containsState(oldStates, t.State) {
			t.State = newState
			s.triggers[tk] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTriggerGroupStateFromOtherState(ctx context.Context, txh delegate.Tx, m key.GroupMatcher, newState, oldState model.TriggerState) ([]string, error) {
	return s.UpdateTriggerGroupStateFromOtherStates(ctx, txh, m, newState, oldState)
}

func (s *Store) UpdateTriggerGroupStateFromOtherStates(_ context.Context, _ delegate.Tx, m key.GroupMatcher, newState model.TriggerState, oldStates...model.TriggerState) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for tk, t := range s.triggers {
		if !m.IsMatch(t.Key.Group) {
			continue
		}
		groups[t.Key.Group] = true
		if containsState(oldStates, t.State) {
			t.State = newState
			s.triggers[tk] = t
		}
	}
	return sortedKeysBool(groups), nil
}

func (s *Store) UpdateTriggerStatesForJob(_ context.Context, _ delegate.Tx, jk key.JobKey, newState model.TriggerState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tk, t := range s.triggers {
		if t.JobKey == jk {
			t.State = newState
			s.triggers[tk] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTriggerStatesForJobFromOtherState(_ context.Context, _ delegate.Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tk, t := range s.triggers {
		if t.JobKey == jk && t.State == oldState {
			t.State = newState
			s.triggers[tk] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertPausedTriggerGroup(_ context.Context, _ delegate.Tx, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedTriggerGroups[group] = true
	return nil
}

func (s *Store) DeletePausedTriggerGroup(_ context.Context, _ delegate.Tx, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pausedTriggerGroups, group)
	return nil
}

func (s *Store) DeleteAllPausedTriggerGroups(_ context.Context, _ delegate.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedTriggerGroups = make(map[string]bool)
	return nil
}

func (s *Store) IsTriggerGroupPaused(_ context.Context, _ delegate.Tx, group string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedTriggerGroups[group] || s.pausedTriggerGroups[model.AllGroupsPausedSentinel], nil
}

func (s *Store) InsertPausedJobGroup(_ context.Context, _ delegate.Tx, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedJobGroups[group] = true
	return nil
}

func (s *Store) DeletePausedJobGroup(_ context.Context, _ delegate.Tx, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pausedJobGroups, group)
	return nil
}

func (s *Store) SelectPausedJobGroups(_ context.Context, _ delegate.Tx) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeysBool(s.pausedJobGroups), nil
}

func (s *Store) IsJobGroupPaused(_ context.Context, _ delegate.Tx, group string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedJobGroups[group] || s.pausedJobGroups[model.AllGroupsPausedSentinel], nil
}

func (s *Store) UpdateSchedulerState(_ context.Context, _ delegate.Tx, rec *model.SchedulerStateRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedulerStates[rec.InstanceID]; !ok {
		return false, nil
	}
	s.schedulerStates[rec.InstanceID] = *rec
	return true, nil
}

func (s *Store) InsertSchedulerState(_ context.Context, _ delegate.Tx, rec *model.SchedulerStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulerStates[rec.InstanceID] = *rec
	return nil
}

func (s *Store) DeleteSchedulerState(_ context.Context, _ delegate.Tx, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedulerStates[instanceID]; !ok {
		return false, nil
	}
	delete(s.schedulerStates, instanceID)
	return true, nil
}

func (s *Store) ClearData(_ context.Context, _ delegate.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]model.Job)
	s.triggers = make(map[string]model.Trigger)
	s.calendars = make(map[string]model.Calendar)
	s.fired = make(map[string]model.FiredTrigger)
	s.pausedTriggerGroups = make(map[string]bool)
	s.pausedJobGroups = make(map[string]bool)
	return nil
}

func containsState(states []model.TriggerState, s2 model.TriggerState) bool {
	for _, s := range states {
		if s == s2 {
			return true
		}
	}
	return false
}

func sortedKeysBool(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortTriggers(ts []*model.Trigger) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Key.Name < ts[j].Key.Name })
}

func sortKeys(ks []key.Key) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].Group != ks[j].Group {
			return ks[i].Group < ks[j].Group
		}
		return ks[i].Name < ks[j].Name
	})
}
