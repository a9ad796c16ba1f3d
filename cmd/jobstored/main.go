// Command jobstored runs a single scheduler instance: the persistent
// trigger/job store, its misfire and cluster-recovery loops, an admin HTTP
// API and a Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreclock/jobstore/config"
	"github.com/coreclock/jobstore/internal/alert"
	"github.com/coreclock/jobstore/internal/calendar"
	"github.com/coreclock/jobstore/internal/clock"
	"github.com/coreclock/jobstore/internal/delegate"
	memdelegate "github.com/coreclock/jobstore/internal/delegate/memory"
	pgdelegate "github.com/coreclock/jobstore/internal/delegate/postgres"
	"github.com/coreclock/jobstore/internal/health"
	joblog "github.com/coreclock/jobstore/internal/log"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/metrics"
	infrapg "github.com/coreclock/jobstore/internal/infrastructure/postgres"
	"github.com/coreclock/jobstore/internal/store"
	httptransport "github.com/coreclock/jobstore/internal/transport/http"
	"github.com/coreclock/jobstore/internal/transport/http/handler"
	"github.com/coreclock/jobstore/internal/triggertype"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var d delegate.Delegate
	var pinger health.Pinger

	switch cfg.Backend {
	case "memory":
		d = memdelegate.New(cfg.InstanceName)
	default:
		pool, err := infrapg.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer pool.Close()
		pinger = pool

		isolation := pgdelegate.ReadCommitted
		if cfg.IsolationSerializable {
			isolation = pgdelegate.Serializable
		}
		pg := pgdelegate.New(pool, cfg.InstanceName, isolation)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		d = pg
	}

	var lockMgr lock.Manager
	if cfg.Clustered || cfg.UseDBLocks {
		lockMgr = lock.NewStoreBacked(d, cfg.InstanceName)
	} else {
		lockMgr = lock.NewInProcess()
	}

	sender := alert.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	signaler := alert.NewSignaler(sender, cfg.AlertTo, logger)

	storeCfg := store.Config{
		InstanceName: cfg.InstanceName,
		InstanceID: cfg.InstanceID,
		Clustered: cfg.Clustered,
		UseDBLocks: cfg.UseDBLocks,
		DBRetryInterval: cfg.DBRetryInterval(),
		MisfireThreshold: cfg.MisfireThreshold(),
		MaxMisfiresToHandleAtATime: cfg.MaxMisfiresToHandle,
		AcquireTriggersWithinLock: cfg.AcquireTriggersWithinLock,
		ClusterCheckinInterval: cfg.ClusterCheckinInterval(),
		DoubleCheckLockMisfireHandler: cfg.DoubleCheckLockMisfire,
	}

	s := store.New(storeCfg, d, lockMgr, signaler, triggertype.NewRegistry(), calendar.NewRegistry(), clock.Real{}, logger)
	if err := s.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	metrics.Register()

	var checkerPinger health.Pinger = pinger
	if checkerPinger == nil {
		checkerPinger = noopPinger{}
	}
	checker := health.NewChecker(checkerPinger, logger, prometheus.DefaultRegisterer)

	storeHandler := handler.NewStoreHandler(s)
	router := httptransport.NewRouter(storeHandler, checker, []byte(cfg.JWTSecret))

	apiSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("admin api listening", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	go runMisfireLoop(ctx, s, cfg.MisfireHandlerPollInterval(), logger)
	go runClusterCheckLoop(ctx, s, cfg.ClusterCheckPollInterval(), logger)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.Shutdown(shutdownCtx)
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	return nil
}

// runMisfireLoop drives misfire recovery on a fixed interval until ctx is
// cancelled, draining RecoverMisfires until it reports no more work.
func runMisfireLoop(ctx context.Context, s *store.Store, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for {
				more, err := s.RecoverMisfires(ctx)
				if err != nil {
					logger.Error("misfire recovery failed", "error", err)
					break
				}
				if !more {
					break
				}
			}
		}
	}
}

// runClusterCheckLoop drives CheckCluster on a fixed interval until ctx is
// cancelled.
func runClusterCheckLoop(ctx context.Context, s *store.Store, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			recovered, err := s.CheckCluster(ctx)
			if err != nil {
				logger.Error("cluster check failed", "error", err)
				continue
			}
			if recovered {
				logger.Warn("recovered failed cluster instances")
			}
		}
	}
}

// noopPinger backs the health checker when running the memory backend,
// which has no external dependency to ping.
type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level: level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(joblog.NewContextHandler(inner))
}
