// Package lifecycle owns the inference engine handle and drives it through
// its loading state machine. Loading happens exactly once per process, on a
// background goroutine, and its outcome is terminal: a failed load is not
// retried until an operator restarts the service.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/newrality/transcribe/cmd/server/internal/engine"
	"github.com/newrality/transcribe/cmd/server/internal/metrics"
)

// State is the engine loading state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// NotReadyError is returned by WaitUntilReady when the engine is not usable
// within the wait bound. TimedOut distinguishes "still warming up" from a
// terminal load failure so operators can tell the two apart.
type NotReadyError struct {
	TimedOut bool
	Message  string
}

func (e *NotReadyError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("model not ready: %s", e.Message)
	}
	return fmt.Sprintf("model load failed: %s", e.Message)
}

// Builder constructs and verifies the engine. It is invoked at most once
// per process lifetime, on the loading goroutine.
type Builder func(ctx context.Context) (engine.Engine, error)

// Snapshot is a non-blocking view of the manager for health reporting.
type Snapshot struct {
	State     State  `json:"state"`
	EngineSet bool   `json:"engine_set"`
	Failure   string `json:"failure,omitempty"`
}

// Manager is the single process-wide lifecycle manager. The readiness
// channel is closed after the terminal state and the engine handle have
// been written under the mutex, so any waiter unblocked by the close
// observes the final state (channel close establishes the happens-before
// edge).
type Manager struct {
	mu      sync.Mutex
	state   State
	failure string
	eng     engine.Engine

	ready chan struct{}
	build Builder
	log   *slog.Logger
}

// NewManager creates a Manager in the Uninitialized state.
func NewManager(build Builder, log *slog.Logger) *Manager {
	return &Manager{
		state: StateUninitialized,
		ready: make(chan struct{}),
		build: build,
		log:   log,
	}
}

// StartLoadingAsync transitions Uninitialized to Loading and kicks off the
// background load. Calls while Loading, Ready or Failed are no-ops, so any
// number of callers may race here and exactly one load runs.
func (m *Manager) StartLoadingAsync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return
	}
	m.state = StateLoading
	m.log.Info("engine load started")
	go m.load()
}

func (m *Manager) load() {
	start := time.Now()
	eng, err := m.build(context.Background())

	m.mu.Lock()
	if err != nil {
		m.state = StateFailed
		m.failure = err.Error()
	} else {
		m.eng = eng
		m.state = StateReady
	}
	close(m.ready)
	m.mu.Unlock()

	metrics.SetModelReady(err == nil)
	if err != nil {
		m.log.Error("engine load failed", "error", err, "elapsed", time.Since(start))
	} else {
		m.log.Info("engine ready", "engine", eng.Name(), "elapsed", time.Since(start))
	}
}

// WaitUntilReady blocks until the engine is Ready, the load has Failed, the
// timeout elapses, or ctx is canceled. It returns nil only when Ready.
// A caller observing Uninitialized triggers the load; everyone else just
// waits. Safe for unbounded concurrent use.
func (m *Manager) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	m.StartLoadingAsync()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.ready:
	case <-timer.C:
		return &NotReadyError{
			TimedOut: true,
			Message:  fmt.Sprintf("engine still loading after %s", timeout),
		}
	case <-ctx.Done():
		return &NotReadyError{
			TimedOut: true,
			Message:  fmt.Sprintf("wait aborted: %v", ctx.Err()),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady {
		return nil
	}
	return &NotReadyError{Message: m.failure}
}

// Engine returns the loaded engine handle, or nil unless Ready. The handle
// is borrowed for the duration of one transcription call, never stored.
func (m *Manager) Engine() engine.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	return m.eng
}

// Snapshot returns the current state without blocking.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		EngineSet: m.eng != nil,
		Failure:   m.failure,
	}
}
