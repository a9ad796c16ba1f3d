// Package txrunner wraps every store-mutating operation in
// {open tx -> acquire lock -> do work -> commit -> signal} with rollback
// and retry policy. It is the one place the lock manager,
// the delegate's transaction lifecycle and the signaler are stitched
// together.
package txrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/metrics"
	"github.com/coreclock/jobstore/internal/model"
)

// LockType selects which named lock, if any, a Runner invocation acquires.
type LockType int

const (
	LockNone LockType = iota
	LockTrigger
	LockState
)

func (l LockType) lockName() string {
	switch l {
	case LockTrigger:
		return lock.TriggerAccess
	case LockState:
		return lock.StateAccess
	default:
		return ""
	}
}

// Signaler is the consumed interface through which the core announces
// listener events and scheduling-change hints.
type Signaler interface {
	SignalSchedulingChange(earliestNewFireTime *time.Time)
	NotifySchedulerListenersError(msg string, err error)
	NotifySchedulerListenersJobDeleted(jobKey fmt.Stringer)
	NotifySchedulerListenersFinalized(trigger any)
	NotifyTriggerListenersMisfired(trigger any)
}

// Work is the unit of business logic a Runner executes inside one
// transaction. It returns a signal time (nil if none requested) and an
// error. Nested helpers called within the same Work return their own signal
// times, which the Work combines with EarliestSignal.
type Work func(ctx context.Context, tx delegate.Tx) (signalAt *time.Time, err error)

// Validator re-queries the back-end after a failed commit to detect the
// "commit actually succeeded before the error was observed" scenario.
// Returning true swallows the commit failure.
type Validator func(ctx context.Context, tx delegate.Tx) bool

// Runner is the store's transaction boundary.
type Runner struct {
	Delegate delegate.Delegate
	Lock lock.Manager
	Signaler Signaler
	Logger *slog.Logger
	RetryInterval time.Duration

	// RetryableActionErrorLogThreshold controls how often a retry loop
	// logs while blocked on persistent failures (every Nth attempt).
	RetryableActionErrorLogThreshold int

	isShutdown func() bool
}

// NewRunner builds a Runner. isShutdown is polled by retry loops so they
// terminate promptly on scheduler shutdown.
func NewRunner(d delegate.Delegate, lm lock.Manager, s Signaler, logger *slog.Logger, retryInterval time.Duration, isShutdown func() bool) *Runner {
	if retryInterval <= 0 {
		retryInterval = 15 * time.Second
	}
	if isShutdown == nil {
		isShutdown = func() bool { return false }
	}
	return &Runner{
		Delegate: d,
		Lock: lm,
		Signaler: s,
		Logger: logger,
		RetryInterval: retryInterval,
		RetryableActionErrorLogThreshold: 4,
		isShutdown: isShutdown,
	}
}

// requestorSeq hands out unique-enough requestor ids for lock re-entrance
// tracking; it need only be unique within this process.
var requestorSeq atomic.Uint64

func nextRequestorID() string {
	n := requestorSeq.Add(1)
	return fmt.Sprintf("req-%d-%d", time.Now().UnixNano(), n)
}

// ExecuteInLock opens a transaction, optionally acquires lockType, runs
// work, commits, and signals on success. validator may be nil.
func (r *Runner) ExecuteInLock(ctx context.Context, lockType LockType, work Work, validator Validator) error {
	tx, err := r.Delegate.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrPersistence, err)
	}

	requestorID := nextRequestorID()
	lockName := lockType.lockName()
	if lockName != "" {
		if err := r.Lock.Obtain(ctx, tx, lockName, requestorID); err != nil {
			_ = r.Delegate.Rollback(ctx, tx)
			return err
		}
		defer r.Lock.Release(lockName, requestorID)
	}

	signalAt, workErr := work(ctx, tx)
	if workErr != nil {
		_ = r.Delegate.Rollback(ctx, tx)
		if errors.Is(workErr, model.ErrObjectAlreadyExists) || errors.Is(workErr, model.ErrCancelled) {
			return workErr
		}
		return fmt.Errorf("%w: %w", model.ErrPersistence, workErr)
	}

	if err := r.Delegate.Commit(ctx, tx); err != nil {
		if validator != nil && validator(ctx, tx) {
			// The back-end actually applied the write before the error
			// surfaced; treat as success.
		} else {
			_ = r.Delegate.Rollback(ctx, tx)
			return fmt.Errorf("%w: commit: %v", model.ErrPersistence, err)
		}
	}

	if signalAt != nil && r.Signaler != nil {
		r.Signaler.SignalSchedulingChange(signalAt)
	}
	return nil
}

// ExecuteWithoutLock runs work in a transaction with no named lock held.
func (r *Runner) ExecuteWithoutLock(ctx context.Context, work Work) error {
	return r.ExecuteInLock(ctx, LockNone, work, nil)
}

// RetryExecuteInLock loops ExecuteInLock until it succeeds or the runner is
// shut down. Used by callers like releaseAcquiredTrigger and
// triggeredJobComplete, which must not lose state to a transient fault.
func (r *Runner) RetryExecuteInLock(ctx context.Context, lockType LockType, work Work) error {
	attempt := 0
	for {
		if r.isShutdown() {
			return model.ErrCancelled
		}
		err := r.ExecuteInLock(ctx, lockType, work, nil)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrObjectAlreadyExists) {
			return err
		}
		attempt++
		metrics.LockRetryTotal.WithLabelValues(lockType.lockName()).Inc()
		if r.Logger != nil && attempt%r.threshold() == 0 {
			r.Logger.Error("retrying store operation after persistence failure",
				slog.Int("attempt", attempt), slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return model.ErrCancelled
		case <-time.After(r.RetryInterval):
		}
	}
}

func (r *Runner) threshold() int {
	if r.RetryableActionErrorLogThreshold <= 0 {
		return 1
	}
	return r.RetryableActionErrorLogThreshold
}

// EarliestSignal returns the earlier of a and b, treating nil as "no
// request".
func EarliestSignal(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}
