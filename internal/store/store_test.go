package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/clock"
	"github.com/coreclock/jobstore/internal/delegate/memory"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/store"
	"github.com/coreclock/jobstore/internal/triggertype"
)

type nopSignaler struct{}

func (nopSignaler) SignalSchedulingChange(*time.Time)           {}
func (nopSignaler) NotifySchedulerListenersError(string, error) {}
func (nopSignaler) NotifySchedulerListenersJobDeleted(fmt.Stringer) {}
func (nopSignaler) NotifySchedulerListenersFinalized(any)        {}
func (nopSignaler) NotifyTriggerListenersMisfired(any)           {}

func newTestStore(t *testing.T, cfg store.Config, fixed *clock.Fixed) *store.Store {
	t.Helper()
	d := memory.New("test-scheduler")
	lm := lock.NewInProcess()
	return newStoreOn(cfg, d, lm, fixed)
}

// newStoreOn builds a Store sharing the given delegate and lock manager,
// letting a test stand up two "instances" of the same cluster.
func newStoreOn(cfg store.Config, d *memory.Store, lm lock.Manager, fixed *clock.Fixed) *store.Store {
	if cfg.InstanceName == "" {
		cfg.InstanceName = "test-scheduler"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = "instance-1"
	}
	return store.New(cfg, d, lm, nopSignaler{}, triggertype.NewRegistry(), calendar.NewRegistry(), fixed, nil)
}

func simpleTrigger(name, group string, jk key.JobKey, next time.Time) *model.Trigger {
	sched := &triggertype.SimpleSchedule{StartTime: next, RepeatCount: 0}
	data, _ := sched.Marshal()
	return &model.Trigger{
		Key:          key.MustNew(name, group),
		JobKey:       jk,
		NextFireTime: &next,
		ScheduleType: sched.Type(),
		ScheduleData: data,
	}
}

func TestStoreJob_InsertAndDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.Config{}, clock.NewFixed(time.Now()))
	job := &model.Job{Key: key.MustNew("job1", "grp"), JobType: "noop"}

	if err := s.StoreJob(ctx, job, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.StoreJob(ctx, job, false); !errors.Is(err, model.ErrObjectAlreadyExists) {
		t.Fatalf("dup store err = %v, want ErrObjectAlreadyExists", err)
	}
	if err := s.StoreJob(ctx, job, true); err != nil {
		t.Fatalf("replace store: %v", err)
	}

	got, err := s.RetrieveJob(ctx, job.Key)
	if err != nil || got == nil {
		t.Fatalf("retrieve: %v, %v", got, err)
	}
}

func TestStoreTrigger_RequiresExistingJobUnlessProvided(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.Config{}, clock.NewFixed(time.Now()))
	jk := key.MustNew("job1", "grp")
	trig := simpleTrigger("t1", "grp", jk, time.Now())

	err := s.StoreTrigger(ctx, trig, nil, false, model.StateWaiting, false, false)
	if !errors.Is(err, model.ErrNoSuchObject) {
		t.Fatalf("err = %v, want ErrNoSuchObject", err)
	}

	job := &model.Job{Key: jk, JobType: "noop"}
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store with job: %v", err)
	}

	state, err := s.GetTriggerState(ctx, trig.Key)
	if err != nil || state != model.ExtNormal {
		t.Fatalf("state = %v, %v, want ExtNormal", state, err)
	}
}

func TestRemoveTrigger_DeletesNonDurableJobWhenLastTriggerGone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.Config{}, clock.NewFixed(time.Now()))
	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop", Durable: false}
	trig := simpleTrigger("t1", "grp", jk, time.Now())

	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	ok, err := s.RemoveTrigger(ctx, trig.Key)
	if err != nil || !ok {
		t.Fatalf("remove = %v, %v", ok, err)
	}

	gotJob, err := s.RetrieveJob(ctx, jk)
	if err != nil || gotJob != nil {
		t.Errorf("job should be gone after last non-durable trigger removed, got %v, %v", gotJob, err)
	}
}

func TestRemoveTrigger_KeepsDurableJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.Config{}, clock.NewFixed(time.Now()))
	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop", Durable: true}
	trig := simpleTrigger("t1", "grp", jk, time.Now())

	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := s.RemoveTrigger(ctx, trig.Key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	gotJob, err := s.RetrieveJob(ctx, jk)
	if err != nil || gotJob == nil {
		t.Errorf("durable job should survive, got %v, %v", gotJob, err)
	}
}

func TestAcquireFireComplete_HappyPath(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := clock.NewFixed(now)
	s := newTestStore(t, store.Config{}, fixed)

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 10, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(acquired) != 1 {
		t.Fatalf("acquired %d triggers, want 1", len(acquired))
	}

	bundles, err := s.TriggersFired(ctx, acquired)
	if err != nil {
		t.Fatalf("fired: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("fired %d bundles, want 1", len(bundles))
	}
	if bundles[0].Job.Key != jk {
		t.Errorf("bundle job = %v, want %v", bundles[0].Job.Key, jk)
	}

	if err := s.TriggeredJobComplete(ctx, bundles[0].Trigger, bundles[0].Job, model.InstructionSetTriggerComplete); err != nil {
		t.Fatalf("complete: %v", err)
	}

	extState, err := s.GetTriggerState(ctx, trig.Key)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if extState != model.ExtComplete {
		t.Errorf("state after complete = %v, want ExtComplete", extState)
	}
}

func TestAcquireNextTriggers_ConcurrentExecutionDisallowedClaimsOnlyOne(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop", ConcurrentExecutionDisallowed: true}
	t1 := simpleTrigger("t1", "grp", jk, now)
	t2 := simpleTrigger("t2", "grp", jk, now)
	if err := s.StoreTrigger(ctx, t1, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t1: %v", err)
	}
	if err := s.StoreTrigger(ctx, t2, nil, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t2: %v", err)
	}

	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 10, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(acquired) != 1 {
		t.Fatalf("acquired %d triggers, want 1 (concurrent execution disallowed)", len(acquired))
	}
}

func TestTriggersFired_ConcurrentDisallowedBlocksSiblings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop", ConcurrentExecutionDisallowed: true}
	t1 := simpleTrigger("t1", "grp", jk, now)
	t2 := simpleTrigger("t2", "grp", jk, now)
	if err := s.StoreTrigger(ctx, t1, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t1: %v", err)
	}
	if err := s.StoreTrigger(ctx, t2, nil, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t2: %v", err)
	}

	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 1, 0)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: %v, %d", err, len(acquired))
	}
	if _, err := s.TriggersFired(ctx, acquired); err != nil {
		t.Fatalf("fired: %v", err)
	}

	siblingState, err := s.GetTriggerState(ctx, t2.Key)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if siblingState != model.ExtBlocked {
		t.Errorf("sibling state = %v, want ExtBlocked", siblingState)
	}
}

func TestReleaseAcquiredTrigger_ReturnsToWaiting(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 10, 0)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: %v, %d", err, len(acquired))
	}

	if err := s.ReleaseAcquiredTrigger(ctx, acquired[0]); err != nil {
		t.Fatalf("release: %v", err)
	}

	state, err := s.GetTriggerState(ctx, trig.Key)
	if err != nil || state != model.ExtNormal {
		t.Fatalf("state after release = %v, %v, want ExtNormal", state, err)
	}
}

func TestPauseResumeTrigger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := s.PauseTrigger(ctx, trig.Key); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if state, _ := s.GetTriggerState(ctx, trig.Key); state != model.ExtPaused {
		t.Fatalf("state after pause = %v, want ExtPaused", state)
	}

	if err := s.ResumeTrigger(ctx, trig.Key); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if state, _ := s.GetTriggerState(ctx, trig.Key); state != model.ExtNormal {
		t.Fatalf("state after resume = %v, want ExtNormal", state)
	}
}

func TestPauseTriggers_GroupWideAndNewTriggerInheritsPause(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	groups, err := s.PauseTriggers(ctx, key.GroupEquals("grp"))
	if err != nil {
		t.Fatalf("pause triggers: %v", err)
	}
	if len(groups) != 1 || groups[0] != "grp" {
		t.Fatalf("groups = %v, want [grp]", groups)
	}

	// A newly stored trigger in the same group must land Paused.
	trig2 := simpleTrigger("t2", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig2, nil, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t2: %v", err)
	}
	state, err := s.GetTriggerState(ctx, trig2.Key)
	if err != nil || state != model.ExtPaused {
		t.Fatalf("new trigger state = %v, %v, want ExtPaused", state, err)
	}
}

func TestPauseAllResumeAll(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := s.PauseAll(ctx); err != nil {
		t.Fatalf("pause all: %v", err)
	}
	if state, _ := s.GetTriggerState(ctx, trig.Key); state != model.ExtPaused {
		t.Fatalf("state after pause all = %v, want ExtPaused", state)
	}

	if err := s.ResumeAll(ctx); err != nil {
		t.Fatalf("resume all: %v", err)
	}
	if state, _ := s.GetTriggerState(ctx, trig.Key); state != model.ExtNormal {
		t.Fatalf("state after resume all = %v, want ExtNormal", state)
	}
}

func TestClearAllSchedulingData(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	job := &model.Job{Key: key.MustNew("job1", "grp"), JobType: "noop"}
	if err := s.StoreJob(ctx, job, false); err != nil {
		t.Fatalf("store job: %v", err)
	}

	if err := s.ClearAllSchedulingData(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := s.GetNumberOfJobs(ctx)
	if err != nil || n != 0 {
		t.Errorf("jobs after clear = %d, %v, want 0", n, err)
	}
}

func TestRecoverMisfires_RequeuesAtNow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := clock.NewFixed(start)
	s := newTestStore(t, store.Config{MisfireThreshold: time.Minute}, fixed)

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, start)
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Advance well past the misfire threshold without anyone acquiring the trigger.
	fixed.Advance(time.Hour)

	more, err := s.RecoverMisfires(ctx)
	if err != nil {
		t.Fatalf("recover misfires: %v", err)
	}
	if more {
		t.Error("expected no further pages of misfired triggers")
	}

	got, err := s.RetrieveTrigger(ctx, trig.Key)
	if err != nil || got == nil {
		t.Fatalf("retrieve: %v, %v", got, err)
	}
	if got.NextFireTime == nil || !got.NextFireTime.Equal(fixed.Now()) {
		t.Errorf("NextFireTime = %v, want %v (requeued to now)", got.NextFireTime, fixed.Now())
	}
}

func TestRecoverMisfires_OneShotCompletesWhenExhausted(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := clock.NewFixed(start)
	s := newTestStore(t, store.Config{MisfireThreshold: time.Minute}, fixed)

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	sched := &triggertype.SimpleSchedule{StartTime: start, RepeatCount: 0, TimesTriggered: 1}
	data, _ := sched.Marshal()
	trig := &model.Trigger{
		Key:          key.MustNew("t1", "grp"),
		JobKey:       jk,
		NextFireTime: &start,
		ScheduleType: sched.Type(),
		ScheduleData: data,
	}
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	fixed.Advance(time.Hour)

	if _, err := s.RecoverMisfires(ctx); err != nil {
		t.Fatalf("recover misfires: %v", err)
	}

	state, err := s.GetTriggerState(ctx, trig.Key)
	if err != nil || state != model.ExtComplete {
		t.Fatalf("state = %v, %v, want ExtComplete (exhausted one-shot)", state, err)
	}
}

func TestCheckCluster_RecoversFailedInstanceAndUnblocksSiblings(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := clock.NewFixed(start)
	d := memory.New("test-scheduler")
	lm := lock.NewInProcess()

	// instance-a acquires and fires t1, blocking its non-concurrent sibling t2.
	aCfg := store.Config{Clustered: true, InstanceID: "instance-a", ClusterCheckinInterval: 15 * time.Second}
	a := newStoreOn(aCfg, d, lm, fixed)
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("a initialize: %v", err)
	}
	if _, err := a.CheckCluster(ctx); err != nil {
		t.Fatalf("a first check-in: %v", err)
	}

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop", ConcurrentExecutionDisallowed: true}
	t1 := simpleTrigger("t1", "grp", jk, start)
	t2 := simpleTrigger("t2", "grp", jk, start)
	if err := a.StoreTrigger(ctx, t1, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t1: %v", err)
	}
	if err := a.StoreTrigger(ctx, t2, nil, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store t2: %v", err)
	}

	acquired, err := a.AcquireNextTriggers(ctx, start.Add(time.Minute), 1, 0)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: %v, %d", err, len(acquired))
	}
	if _, err := a.TriggersFired(ctx, acquired); err != nil {
		t.Fatalf("fired: %v", err)
	}
	if state, _ := a.GetTriggerState(ctx, t2.Key); state != model.ExtBlocked {
		t.Fatalf("sibling state before recovery = %v, want ExtBlocked", state)
	}

	// instance-c observes the cluster; instance-a then goes silent.
	cCfg := store.Config{Clustered: true, InstanceID: "instance-c", ClusterCheckinInterval: 15 * time.Second}
	c := newStoreOn(cCfg, d, lm, fixed)
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("c initialize: %v", err)
	}
	if _, err := c.CheckCluster(ctx); err != nil {
		t.Fatalf("c first check-in: %v", err)
	}

	fixed.Advance(time.Minute)
	recovered, err := c.CheckCluster(ctx)
	if err != nil {
		t.Fatalf("check cluster: %v", err)
	}
	if !recovered {
		t.Fatal("expected instance-a to be declared failed and recovered")
	}

	siblingState, err := c.GetTriggerState(ctx, t2.Key)
	if err != nil || siblingState != model.ExtNormal {
		t.Fatalf("sibling state = %v, %v, want ExtNormal once the failed instance was recovered", siblingState, err)
	}
}

func TestRemoveCalendar_RefusesWhenReferenced(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, store.Config{}, clock.NewFixed(now))

	cal := &model.Calendar{Name: "biz-hours", Type: "base"}
	if err := s.StoreCalendar(ctx, cal, false, false); err != nil {
		t.Fatalf("store calendar: %v", err)
	}

	jk := key.MustNew("job1", "grp")
	job := &model.Job{Key: jk, JobType: "noop"}
	trig := simpleTrigger("t1", "grp", jk, now)
	trig.CalendarName = "biz-hours"
	if err := s.StoreTrigger(ctx, trig, job, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	if _, err := s.RemoveCalendar(ctx, "biz-hours"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
