package metrics_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coreclock/jobstore/internal/metrics"
)

// Register mutates the default prometheus registry, which is global
// process state; guard against double-registration if tests ever run
// this file's cases more than once in the same binary.
var registerOnce sync.Once

func TestRegister_DoesNotPanic(t *testing.T) {
	registerOnce.Do(metrics.Register)
}

func TestNewServer_ServesMetricsEndpoint(t *testing.T) {
	registerOnce.Do(metrics.Register)
	metrics.TriggersAcquiredTotal.Inc()

	srv := metrics.NewServer(":0")
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	srv.Handler.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "jobstore_triggers_acquired_total") {
		t.Errorf("metrics output missing jobstore_triggers_acquired_total counter")
	}
}
