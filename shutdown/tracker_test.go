package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOperationTracker_StartDone(t *testing.T) {
	tracker := NewOperationTracker()

	if !tracker.Start() || !tracker.Start() {
		t.Fatal("Start() = false on open tracker")
	}
	if got := tracker.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}

	tracker.Done()
	tracker.Done()
	if got := tracker.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
	if err := tracker.Wait(time.Second); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestOperationTracker_Close(t *testing.T) {
	tracker := NewOperationTracker()
	tracker.Close()

	if !tracker.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if tracker.Start() {
		t.Error("Start() = true after Close")
	}
}

func TestOperationTracker_WaitTimeout(t *testing.T) {
	tracker := NewOperationTracker()
	tracker.Start()
	defer tracker.Done()

	if err := tracker.Wait(20 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("Wait() = %v, want ErrWaitTimeout", err)
	}
}

func TestOperationTracker_WaitForInFlight(t *testing.T) {
	tracker := NewOperationTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		if !tracker.Start() {
			t.Fatal("Start() = false")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			tracker.Done()
		}()
	}

	tracker.Close()
	if err := tracker.Wait(2 * time.Second); err != nil {
		t.Errorf("Wait() = %v", err)
	}
	wg.Wait()
}
