package txrunner_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/delegate/memory"
	"github.com/coreclock/jobstore/internal/lock"
	"github.com/coreclock/jobstore/internal/model"
	"github.com/coreclock/jobstore/internal/txrunner"
)

type fakeSignaler struct {
	signaled []*time.Time
}

func (f *fakeSignaler) SignalSchedulingChange(t *time.Time)                 { f.signaled = append(f.signaled, t) }
func (f *fakeSignaler) NotifySchedulerListenersError(string, error)         {}
func (f *fakeSignaler) NotifySchedulerListenersJobDeleted(fmt.Stringer)     {}
func (f *fakeSignaler) NotifySchedulerListenersFinalized(any)               {}
func (f *fakeSignaler) NotifyTriggerListenersMisfired(any)                  {}

func newRunner(sig *fakeSignaler, isShutdown func() bool) *txrunner.Runner {
	d := memory.New("sched")
	lm := lock.NewInProcess()
	return txrunner.NewRunner(d, lm, sig, nil, 10*time.Millisecond, isShutdown)
}

func TestExecuteInLock_CommitsAndSignals(t *testing.T) {
	sig := &fakeSignaler{}
	r := newRunner(sig, nil)
	want := time.Now().Add(time.Minute)

	err := r.ExecuteInLock(context.Background(), txrunner.LockTrigger, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return &want, nil
	}, nil)
	if err != nil {
		t.Fatalf("ExecuteInLock: %v", err)
	}
	if len(sig.signaled) != 1 || !sig.signaled[0].Equal(want) {
		t.Fatalf("signaled = %v, want [%v]", sig.signaled, want)
	}
}

func TestExecuteInLock_WorkErrorRollsBackAndWraps(t *testing.T) {
	r := newRunner(&fakeSignaler{}, nil)
	workErr := errors.New("boom")

	err := r.ExecuteInLock(context.Background(), txrunner.LockNone, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return nil, workErr
	}, nil)
	if err == nil || !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("err = %v, want wrapped ErrPersistence", err)
	}
}

func TestExecuteInLock_AlreadyExistsPassesThroughUnwrapped(t *testing.T) {
	r := newRunner(&fakeSignaler{}, nil)

	err := r.ExecuteInLock(context.Background(), txrunner.LockNone, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return nil, model.ErrObjectAlreadyExists
	}, nil)
	if !errors.Is(err, model.ErrObjectAlreadyExists) {
		t.Fatalf("err = %v, want ErrObjectAlreadyExists unwrapped", err)
	}
}

func TestExecuteWithoutLock_NoLockNeeded(t *testing.T) {
	r := newRunner(&fakeSignaler{}, nil)
	called := false
	err := r.ExecuteWithoutLock(context.Background(), func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		called = true
		return nil, nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestRetryExecuteInLock_StopsOnShutdown(t *testing.T) {
	shutdown := false
	r := newRunner(&fakeSignaler{}, func() bool { return shutdown })

	attempts := 0
	go func() {
		time.Sleep(30 * time.Millisecond)
		shutdown = true
	}()

	err := r.RetryExecuteInLock(context.Background(), txrunner.LockNone, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		attempts++
		return nil, errors.New("transient")
	})
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if attempts == 0 {
		t.Error("expected at least one retry attempt before shutdown")
	}
}

func TestRetryExecuteInLock_SucceedsAfterTransientFailures(t *testing.T) {
	r := newRunner(&fakeSignaler{}, nil)
	attempts := 0

	err := r.RetryExecuteInLock(context.Background(), txrunner.LockState, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExecuteInLock_StopsOnContextCancel(t *testing.T) {
	r := newRunner(&fakeSignaler{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.RetryExecuteInLock(ctx, txrunner.LockNone, func(ctx context.Context, tx delegate.Tx) (*time.Time, error) {
		return nil, errors.New("transient")
	})
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestEarliestSignal(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	if got := txrunner.EarliestSignal(nil, &later); got != &later {
		t.Errorf("EarliestSignal(nil, later) = %v, want later", got)
	}
	if got := txrunner.EarliestSignal(&now, nil); got != &now {
		t.Errorf("EarliestSignal(now, nil) = %v, want now", got)
	}
	if got := txrunner.EarliestSignal(&later, &now); got != &now {
		t.Errorf("EarliestSignal(later, now) = %v, want now", got)
	}
}
