package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/clock"
	"github.com/coreclock/jobstore/internal/delegate/memory"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/store"
	"github.com/coreclock/jobstore/internal/transport/http/handler"
	"github.com/coreclock/jobstore/internal/triggertype"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopSignaler struct{}

func (nopSignaler) SignalSchedulingChange(*time.Time)               {}
func (nopSignaler) NotifySchedulerListenersError(string, error)     {}
func (nopSignaler) NotifySchedulerListenersJobDeleted(fmt.Stringer) {}
func (nopSignaler) NotifySchedulerListenersFinalized(any)           {}
func (nopSignaler) NotifyTriggerListenersMisfired(any)              {}

func newTestEngine(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	d := memory.New("test-scheduler")
	lm := lock.NewInProcess()
	s := store.New(store.Config{InstanceName: "test-scheduler", InstanceID: "instance-1"}, d, lm, nopSignaler{},
		triggertype.NewRegistry(), calendar.NewRegistry(), clock.NewFixed(time.Now()), nil)

	h := handler.NewStoreHandler(s)
	r := gin.New()
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:group/:name", h.GetJob)
	r.DELETE("/jobs/:group/:name", h.DeleteJob)
	r.POST("/jobs/:group/:name/pause", h.PauseJob)
	r.POST("/jobs/:group/:name/resume", h.ResumeJob)
	r.GET("/triggers", h.ListTriggers)
	r.GET("/triggers/:group/:name", h.GetTrigger)
	r.GET("/triggers/:group/:name/state", h.GetTriggerState)
	r.DELETE("/triggers/:group/:name", h.DeleteTrigger)
	r.POST("/triggers/:group/:name/pause", h.PauseTrigger)
	r.POST("/triggers/:group/:name/resume", h.ResumeTrigger)
	r.POST("/trigger-groups/:group/pause", h.PauseTriggerGroup)
	r.POST("/trigger-groups/:group/resume", h.ResumeTriggerGroup)
	r.POST("/pause-all", h.PauseAll)
	r.POST("/resume-all", h.ResumeAll)
	r.GET("/stats", h.Stats)
	r.POST("/cluster/check", h.CheckCluster)
	return r, s
}

func TestGetJob_NotFound(t *testing.T) {
	r, _ := newTestEngine(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/grp/missing", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetJob_Found(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	if err := s.StoreJob(context.Background(), &model.Job{Key: jk, JobType: "noop"}, false); err != nil {
		t.Fatalf("store job: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/grp/job1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var got model.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Key != jk {
		t.Errorf("key = %v, want %v", got.Key, jk)
	}
}

func TestDeleteJob_NotFoundReturns404(t *testing.T) {
	r, _ := newTestEngine(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/jobs/grp/missing", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteJob_RemovesExistingJob(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	if err := s.StoreJob(context.Background(), &model.Job{Key: jk, JobType: "noop", Durable: true}, false); err != nil {
		t.Fatalf("store job: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/jobs/grp/job1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	got, err := s.RetrieveJob(context.Background(), jk)
	if err != nil || got != nil {
		t.Errorf("job should be gone, got %v, %v", got, err)
	}
}

func TestPauseResumeJob_RoundTrip(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	tk := key.MustNew("t1", "grp")
	if err := s.StoreTrigger(context.Background(), &model.Trigger{Key: tk, JobKey: jk, ScheduleType: "simple"},
		&model.Job{Key: jk, JobType: "noop"}, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/grp/job1/pause", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d, want 204", w.Code)
	}
	if state, _ := s.GetTriggerState(context.Background(), tk); state != model.ExtPaused {
		t.Fatalf("trigger state after job pause = %v, want ExtPaused", state)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/grp/job1/resume", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("resume status = %d, want 204", w.Code)
	}
	if state, _ := s.GetTriggerState(context.Background(), tk); state != model.ExtNormal {
		t.Fatalf("trigger state after job resume = %v, want ExtNormal", state)
	}
}

func TestListJobs_FiltersByGroupQueryParam(t *testing.T) {
	r, s := newTestEngine(t)
	ctx := context.Background()
	if err := s.StoreJob(ctx, &model.Job{Key: key.MustNew("job1", "grpA"), JobType: "noop"}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreJob(ctx, &model.Job{Key: key.MustNew("job2", "grpB"), JobType: "noop"}, false); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs?group=grpA", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Jobs []key.Key `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].Group != "grpA" {
		t.Errorf("jobs = %v, want one job in grpA", body.Jobs)
	}
}

func TestGetTriggerState_ReturnsState(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	tk := key.MustNew("t1", "grp")
	if err := s.StoreTrigger(context.Background(), &model.Trigger{Key: tk, JobKey: jk, ScheduleType: "simple"},
		&model.Job{Key: jk, JobType: "noop"}, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/triggers/grp/t1/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		State model.ExternalTriggerState `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.State != model.ExtNormal {
		t.Errorf("state = %v, want ExtNormal", body.State)
	}
}

func TestPauseTriggerGroup_ReturnsAffectedGroups(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	tk := key.MustNew("t1", "grp")
	if err := s.StoreTrigger(context.Background(), &model.Trigger{Key: tk, JobKey: jk, ScheduleType: "simple"},
		&model.Job{Key: jk, JobType: "noop"}, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trigger-groups/grp/pause", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Paused []string `json:"paused"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Paused) != 1 || body.Paused[0] != "grp" {
		t.Errorf("paused = %v, want [grp]", body.Paused)
	}
}

func TestPauseAllResumeAll_ViaHTTP(t *testing.T) {
	r, s := newTestEngine(t)
	jk := key.MustNew("job1", "grp")
	tk := key.MustNew("t1", "grp")
	if err := s.StoreTrigger(context.Background(), &model.Trigger{Key: tk, JobKey: jk, ScheduleType: "simple"},
		&model.Job{Key: jk, JobType: "noop"}, false, model.StateWaiting, false, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pause-all", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("pause-all status = %d, want 204", w.Code)
	}
	if state, _ := s.GetTriggerState(context.Background(), tk); state != model.ExtPaused {
		t.Fatalf("state after pause-all = %v, want ExtPaused", state)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resume-all", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("resume-all status = %d, want 204", w.Code)
	}
}

func TestStats_ReportsCounts(t *testing.T) {
	r, s := newTestEngine(t)
	if err := s.StoreJob(context.Background(), &model.Job{Key: key.MustNew("job1", "grp"), JobType: "noop"}, false); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Jobs int `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Jobs != 1 {
		t.Errorf("jobs = %d, want 1", body.Jobs)
	}
}

func TestCheckCluster_ViaHTTP(t *testing.T) {
	r, _ := newTestEngine(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cluster/check", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Recovered bool `json:"recovered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
