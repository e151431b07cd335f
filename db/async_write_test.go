package db

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterProcessesWrites(t *testing.T) {
	var mu sync.Mutex
	var received []any

	writer := NewAsyncWriter(func(op WriteOperation) error {
		mu.Lock()
		received = append(received, op.Data)
		mu.Unlock()
		return nil
	})
	writer.Start()

	for _, data := range []string{"first", "second", "third"} {
		if !writer.Write(data) {
			t.Errorf("Write(%q) = false", data)
		}
	}
	writer.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("received %d writes, want 3", len(received))
	}
	if received[0] != "first" || received[2] != "third" {
		t.Errorf("writes out of order: %v", received)
	}
	if writer.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", writer.Processed())
	}
}

func TestAsyncWriterDrainsOnStop(t *testing.T) {
	var processed atomic.Int64
	release := make(chan struct{})

	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error {
		<-release
		processed.Add(1)
		return nil
	}, AsyncWriterConfig{ChannelCapacity: 10})
	writer.Start()

	for i := 0; i < 5; i++ {
		writer.Write(i)
	}
	close(release)
	writer.Stop()

	if got := processed.Load(); got != 5 {
		t.Errorf("processed = %d, want 5 after drain", got)
	}
	if writer.IsStarted() {
		t.Error("IsStarted() = true after Stop")
	}
}

func TestAsyncWriterFullBuffer(t *testing.T) {
	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error { return nil },
		AsyncWriterConfig{ChannelCapacity: 2})

	// Not started: nothing consumes the buffer.
	if !writer.Write(1) || !writer.Write(2) {
		t.Fatal("Write() failed before buffer was full")
	}
	if writer.Write(3) {
		t.Error("Write() = true on a full buffer")
	}
	if writer.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", writer.Pending())
	}
	if writer.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", writer.Rejected())
	}
}

func TestAsyncWriterRejectsAfterStop(t *testing.T) {
	writer := NewAsyncWriter(func(op WriteOperation) error { return nil })
	writer.Start()
	writer.Stop()

	if writer.Write("late") {
		t.Error("Write() = true after Stop")
	}
}

func TestAsyncWriterReportsErrors(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	boom := errors.New("disk full")

	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error {
		if op.Data == "bad" {
			return boom
		}
		return nil
	}, AsyncWriterConfig{
		ChannelCapacity: 4,
		OnError: func(op WriteOperation, err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	writer.Start()
	writer.Write("good")
	writer.Write("bad")

	if !writer.StopWithTimeout(time.Second) {
		t.Fatal("StopWithTimeout() timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || !errors.Is(reported[0], boom) {
		t.Errorf("reported = %v, want [%v]", reported, boom)
	}
	if writer.Failed() != 1 || writer.Processed() != 1 {
		t.Errorf("Failed() = %d, Processed() = %d, want 1 and 1", writer.Failed(), writer.Processed())
	}
}
