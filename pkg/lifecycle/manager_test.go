package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bft-labs/usercoord/pkg/log"
)

// recordingEmitter tracks state change events for testing.
type recordingEmitter struct {
	mu     sync.Mutex
	events []stateChange
}

type stateChange struct {
	previous State
	current  State
}

func (r *recordingEmitter) OnStateChange(previous, current State, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stateChange{previous, current})
}

func (r *recordingEmitter) Events() []stateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stateChange{}, r.events...)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateCrashed, "Crashed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateStopped, StateStarting, true},
		{StateStopped, StateRunning, false},
		{StateStarting, StateRunning, true},
		{StateStarting, StateStopping, false},
		{StateRunning, StateStopping, true},
		{StateRunning, StateCrashed, true},
		{StateRunning, StateStarting, false},
		{StateStopping, StateStopped, true},
		{StateCrashed, StateStarting, true},
		{StateCrashed, StateStopping, true},
		{StateCrashed, StateRunning, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestManager_TransitionTo_Invalid(t *testing.T) {
	m := NewManager(log.NewNoopLogger(), nil)

	err := m.TransitionTo(StateRunning, "skip starting")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("TransitionTo(Running) error = %v, want ErrInvalidTransition", err)
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want Stopped", m.State())
	}
}

func TestManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	emitter := &recordingEmitter{}
	m := NewManager(nil, emitter)

	if !m.CanStart() || m.CanStop() {
		t.Fatal("fresh manager should be startable and not stoppable")
	}

	ctx, err := m.Begin(context.Background(), "test")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.Go("worker", func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := m.TransitionTo(StateRunning, "started"); err != nil {
		t.Fatalf("TransitionTo(Running): %v", err)
	}
	if m.CanStart() {
		t.Error("running manager should not be startable")
	}

	if err := m.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want Stopped", m.State())
	}

	want := []stateChange{
		{StateStopped, StateStarting},
		{StateStarting, StateRunning},
		{StateRunning, StateStopping},
		{StateStopping, StateStopped},
	}
	got := emitter.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestManager_WorkerFailureCrashes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(nil, nil)
	ctx, err := m.Begin(context.Background(), "test")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.TransitionTo(StateRunning, "started"); err != nil {
		t.Fatalf("TransitionTo(Running): %v", err)
	}

	peerDone := make(chan struct{})
	m.Go("peer", func() error {
		defer close(peerDone)
		<-ctx.Done()
		return nil
	})
	m.Go("failing", func() error { return errors.New("boom") })

	select {
	case <-peerDone:
	case <-time.After(time.Second):
		t.Fatal("peer worker was not canceled by the failing worker")
	}
	if m.State() != StateCrashed {
		t.Fatalf("state = %s, want Crashed", m.State())
	}

	if !m.CanStop() {
		t.Fatal("crashed manager should be stoppable")
	}
	if err := m.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want Stopped", m.State())
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	m := NewManager(nil, nil)
	if _, err := m.Begin(context.Background(), "test"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	m.Go("stuck", func() error {
		<-release
		return nil
	})
	if err := m.TransitionTo(StateRunning, "started"); err != nil {
		t.Fatalf("TransitionTo(Running): %v", err)
	}

	err := m.Shutdown(20 * time.Millisecond)
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Shutdown error = %v, want ErrShutdownTimeout", err)
	}
	if m.State() != StateCrashed {
		t.Errorf("state = %s, want Crashed", m.State())
	}
}

func TestManager_Abort(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(nil, nil)
	ctx, err := m.Begin(context.Background(), "test")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.Go("worker", func() error {
		<-ctx.Done()
		return nil
	})

	m.Abort("plugin failed")
	if m.State() != StateCrashed {
		t.Fatalf("state = %s, want Crashed", m.State())
	}
	if !m.CanStart() {
		t.Error("crashed manager should be restartable")
	}
}
