package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	memdelegate "github.com/coreclock/jobstore/internal/delegate/memory"
	"github.com/coreclock/jobstore/internal/lock"
)

func TestInProcess_ObtainRelease(t *testing.T) {
	m := lock.NewInProcess()
	ctx := context.Background()

	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	m.Release(lock.TriggerAccess, "requestor-1")

	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-2"); err != nil {
		t.Fatalf("re-obtain after release: %v", err)
	}
	m.Release(lock.TriggerAccess, "requestor-2")
}

func TestInProcess_ReentrantObtainBySameRequestor(t *testing.T) {
	m := lock.NewInProcess()
	ctx := context.Background()

	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("first obtain: %v", err)
	}
	defer m.Release(lock.TriggerAccess, "requestor-1")

	done := make(chan error, 1)
	go func() { done <- m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reentrant obtain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reentrant obtain by the same requestor deadlocked")
	}
}

func TestInProcess_BlocksOtherRequestorUntilReleased(t *testing.T) {
	m := lock.NewInProcess()
	ctx := context.Background()

	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-2")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second requestor acquired the lock before the first released it")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(lock.TriggerAccess, "requestor-1")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second requestor never acquired the lock after release")
	}
}

func TestInProcess_ContextCancellationReturnsError(t *testing.T) {
	m := lock.NewInProcess()
	ctx := context.Background()
	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	defer m.Release(lock.TriggerAccess, "requestor-1")

	cancelCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var obtainErr error
	go func() {
		defer wg.Done()
		obtainErr = m.Obtain(cancelCtx, nil, lock.TriggerAccess, "requestor-2")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	if obtainErr == nil {
		t.Fatal("expected an error after context cancellation while blocked")
	}
}

func TestInProcess_ReleaseByNonHolderIsNoop(t *testing.T) {
	m := lock.NewInProcess()
	ctx := context.Background()
	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}

	m.Release(lock.TriggerAccess, "someone-else")

	if err := m.Obtain(ctx, nil, lock.TriggerAccess, "requestor-1"); err != nil {
		t.Fatalf("reentrant obtain should still succeed: %v", err)
	}
	m.Release(lock.TriggerAccess, "requestor-1")
}

func TestStoreBacked_Obtain(t *testing.T) {
	d := memdelegate.New("sched-a")
	m := lock.NewStoreBacked(d, "sched-a")
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := m.Obtain(ctx, tx, lock.StateAccess, "requestor-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}

	// Reentrant obtain by the same requestor must not re-call the delegate.
	if err := m.Obtain(ctx, tx, lock.StateAccess, "requestor-1"); err != nil {
		t.Fatalf("reentrant obtain: %v", err)
	}

	m.Release(lock.StateAccess, "requestor-1")
}
