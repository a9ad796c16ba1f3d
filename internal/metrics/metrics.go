package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Acquire/fire pipeline

	AcquireDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name: "acquire_duration_seconds",
		Help: "Time taken by one AcquireNextTriggers call.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	TriggersAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "triggers_acquired_total",
		Help: "Total triggers moved from Waiting to Acquired.",
	})

	TriggersFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "triggers_fired_total",
		Help: "Total triggers moved from Acquired to Executing.",
	})

	TriggersCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "triggers_completed_total",
		Help: "Total TriggeredJobComplete calls, by completion instruction.",
	}, []string{"instruction"})

	FiredTriggersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobstore",
		Name: "fired_triggers_in_flight",
		Help: "Number of FiredTrigger rows currently Acquired or Executing.",
	})

	// Lock discipline

	LockWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name: "lock_wait_duration_seconds",
		Help: "Time spent waiting to obtain a named lock.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"lock"})

	LockRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "lock_retry_total",
		Help: "Total retries of a RetryExecuteInLock unit of work.",
	}, []string{"lock"})

	// Misfire handling

	MisfiresDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "misfires_detected_total",
		Help: "Total triggers found past their misfire threshold.",
	})

	MisfiresRequeuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "misfires_requeued_total",
		Help: "Total misfired triggers given a new next-fire-time.",
	})

	MisfiresCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "misfires_completed_total",
		Help: "Total misfired triggers that had no further fire time and were finalized.",
	})

	// Cluster recovery

	ClusterRecoveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "cluster_recoveries_total",
		Help: "Total times CheckCluster ran a failed-instance recovery.",
	})

	ClusterFailedInstancesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "cluster_failed_instances_total",
		Help: "Total peer instances declared failed and recovered.",
	})

	ClusterCheckinDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name: "cluster_checkin_duration_seconds",
		Help: "Time taken by one CheckCluster pass.",
		Buckets: prometheus.DefBuckets,
	})

	// HTTP (admin/introspection API)

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name: "http_request_duration_seconds",
		Help: "HTTP request latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name: "http_requests_total",
		Help: "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		AcquireDuration,
		TriggersAcquiredTotal,
		TriggersFiredTotal,
		TriggersCompletedTotal,
		FiredTriggersInFlight,
		LockWaitDuration,
		LockRetryTotal,
		MisfiresDetectedTotal,
		MisfiresRequeuedTotal,
		MisfiresCompletedTotal,
		ClusterRecoveriesTotal,
		ClusterFailedInstancesTotal,
		ClusterCheckinDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
