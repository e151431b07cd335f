package shutdown

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"stega_backend/core"

	"go.uber.org/zap/zaptest"
)

func TestManager_ShutdownRunsHandlers(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(2*time.Second))

	var order []string
	manager.Register("database", PriorityDatabase, func(ctx context.Context) error {
		order = append(order, "database")
		return nil
	})
	manager.Register("http", PriorityHTTPServer, func(ctx context.Context) error {
		order = append(order, "http")
		return nil
	})

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if len(order) != 2 || order[0] != "http" || order[1] != "database" {
		t.Errorf("order = %v", order)
	}
	if manager.Context().Err() == nil {
		t.Error("Context should be cancelled after Shutdown")
	}
	if !manager.IsShuttingDown() {
		t.Error("IsShuttingDown() = false")
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestManager_ShutdownReportsErrors(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t))
	manager.Register("broken", 1, func(ctx context.Context) error { return errors.New("close failed") })

	if err := manager.Shutdown(); err == nil {
		t.Error("Shutdown() = nil, want error")
	}
}

func TestManager_WaitsForInFlight(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), WithTimeout(2*time.Second))

	done, ok := manager.Begin()
	if !ok {
		t.Fatal("Begin() = false before shutdown")
	}

	finished := make(chan struct{})
	cleanupSawActive := int64(-1)
	manager.Register("check", 1, func(ctx context.Context) error {
		cleanupSawActive = manager.ActiveOperations()
		return nil
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(finished)
		done()
	}()

	if err := manager.Shutdown(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-finished:
	default:
		t.Error("Shutdown returned before the in-flight operation finished")
	}
	if cleanupSawActive != 0 {
		t.Errorf("cleanup saw %d active operations, want 0", cleanupSawActive)
	}
}

func TestManager_Begin(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t))

	done, ok := manager.Begin()
	if !ok {
		t.Fatal("Begin() = false before shutdown")
	}
	if got := manager.ActiveOperations(); got != 1 {
		t.Errorf("ActiveOperations() = %d, want 1", got)
	}
	done()
	if got := manager.ActiveOperations(); got != 0 {
		t.Errorf("ActiveOperations() after done = %d, want 0", got)
	}

	manager.Shutdown()
	if _, ok := manager.Begin(); ok {
		t.Error("Begin() = true after shutdown")
	}
	if !manager.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
}

func TestManager_Signals(t *testing.T) {
	exitCode := -1
	manager := NewManager(zaptest.NewLogger(t), WithExitFunc(func(code int) { exitCode = code }))

	manager.handleSignal(syscall.SIGTERM)
	select {
	case <-manager.Context().Done():
	default:
		t.Fatal("first signal did not cancel the context")
	}
	if exitCode != -1 {
		t.Error("first signal forced exit")
	}

	manager.handleSignal(syscall.SIGINT)
	if exitCode != core.ExitCodeError {
		t.Errorf("exit code = %d after second signal, want %d", exitCode, core.ExitCodeError)
	}
}

func TestManager_Trigger(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t))
	manager.Trigger()

	waited := make(chan struct{})
	go func() {
		manager.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Trigger")
	}
}
