// Package lock implements the two named mutual-exclusion primitives the
// store core serializes through: TRIGGER_ACCESS and
// STATE_ACCESS. Two implementations are provided — an in-process monitor
// used when clustering is disabled, and a store-backed row lock mandatory
// once clustering is enabled.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/metrics"
	"github.com/coreclock/jobstore/internal/model"
)

const (
	TriggerAccess = "TRIGGER_ACCESS"
	StateAccess = "STATE_ACCESS"
)

// Manager is the LockManager consumed interface.
type Manager interface {
	// Obtain blocks until lockName is held by requestorID within tx, or
	// returns ErrLockUnavailable on a back-end failure.
	Obtain(ctx context.Context, tx delegate.Tx, lockName, requestorID string) error
	// Release is idempotent-safe: releasing a lock not held is a no-op.
	Release(lockName, requestorID string)
}

// InProcess is a process-local mutex per lock name, used when clustering is
// disabled. Obtain blocks on contention; it never fails except on context
// cancellation. Each named lock is a buffered channel holding at most one
// token: acquiring is a channel receive and releasing is a channel send, so
// a cancelled waiter can bail out of the select without ever touching the
// channel — unlike a goroutine blocked on sync.Mutex.Lock, it cannot leave
// the lock acquired-but-untracked behind it.
type InProcess struct {
	mu sync.Mutex
	tokens map[string]chan struct{}
	// holders tracks which requestor currently holds each lock, so a
	// re-entrant Obtain by the same requestor within one transaction
	// runner invocation does not deadlock against itself.
	holders map[string]string
}

func NewInProcess() *InProcess {
	return &InProcess{
		tokens: make(map[string]chan struct{}),
		holders: make(map[string]string),
	}
}

func (m *InProcess) tokenFor(lockName string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.tokens[lockName]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		m.tokens[lockName] = ch
	}
	return ch
}

func (m *InProcess) Obtain(ctx context.Context, _ delegate.Tx, lockName, requestorID string) error {
	m.mu.Lock()
	if m.holders[lockName] == requestorID {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start := time.Now()
	ch := m.tokenFor(lockName)
	select {
	case <-ch:
	case <-ctx.Done():
		return model.ErrCancelled
	}
	metrics.LockWaitDuration.WithLabelValues(lockName).Observe(time.Since(start).Seconds())

	m.mu.Lock()
	m.holders[lockName] = requestorID
	m.mu.Unlock()
	return nil
}

func (m *InProcess) Release(lockName, requestorID string) {
	m.mu.Lock()
	if m.holders[lockName] != requestorID {
		m.mu.Unlock()
		return
	}
	delete(m.holders, lockName)
	ch := m.tokens[lockName]
	m.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
}

// StoreBacked acquires a row-level lock through the Delegate within the
// caller's transaction. The row is released implicitly when the
// transaction commits or rolls back; Release here only forgets the
// in-process requestor bookkeeping used to detect re-entrance.
type StoreBacked struct {
	delegate delegate.Delegate
	schedulerName string

	mu sync.Mutex
	holders map[string]string // lockName -> requestorID, scoped to the current tx
}

func NewStoreBacked(d delegate.Delegate, schedulerName string) *StoreBacked {
	return &StoreBacked{delegate: d, schedulerName: schedulerName, holders: make(map[string]string)}
}

func (m *StoreBacked) Obtain(ctx context.Context, tx delegate.Tx, lockName, requestorID string) error {
	m.mu.Lock()
	if m.holders[lockName] == requestorID {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start := time.Now()
	if err := m.delegate.ObtainLock(ctx, tx, m.schedulerName, lockName, requestorID); err != nil {
		return fmt.Errorf("%w: %v", model.ErrLockUnavailable, err)
	}
	metrics.LockWaitDuration.WithLabelValues(lockName).Observe(time.Since(start).Seconds())

	m.mu.Lock()
	m.holders[lockName] = requestorID
	m.mu.Unlock()
	return nil
}

func (m *StoreBacked) Release(lockName, requestorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[lockName] == requestorID {
		delete(m.holders, lockName)
	}
}

var _ Manager = (*InProcess)(nil)
var _ Manager = (*StoreBacked)(nil)
