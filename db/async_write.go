package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity is the default buffer size for async write channels.
const DefaultChannelCapacity = 100

// WriteOperation is one queued write.
type WriteOperation struct {
	Data      any
	Timestamp time.Time
}

// WriteHandler processes one queued write.
type WriteHandler func(op WriteOperation) error

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	// ChannelCapacity is the buffer size for pending writes
	ChannelCapacity int
	// OnError is called with each handler failure (optional)
	OnError func(op WriteOperation, err error)
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{ChannelCapacity: DefaultChannelCapacity}
}

// AsyncWriter runs writes on a background goroutine so request handlers
// never wait on SQLite. Stop drains whatever is still buffered.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	onError   func(op WriteOperation, err error)
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	mu        sync.Mutex

	processed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewAsyncWriter creates a new async writer with default configuration.
func NewAsyncWriter(handler WriteHandler) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig creates a new async writer with custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		onError:   config.OnError,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins background processing. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}

	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainChannel()
			return
		case op := <-w.writeChan:
			w.handle(op)
		}
	}
}

func (w *AsyncWriter) drainChannel() {
	for {
		select {
		case op := <-w.writeChan:
			w.handle(op)
		default:
			return
		}
	}
}

func (w *AsyncWriter) handle(op WriteOperation) {
	if err := w.handler(op); err != nil {
		w.failed.Add(1)
		if w.onError != nil {
			w.onError(op, err)
		}
		return
	}
	w.processed.Add(1)
}

// Write queues data without blocking. It returns false when the buffer is
// full or the writer has been stopped; the caller still owns data then.
func (w *AsyncWriter) Write(data any) bool {
	if w.ctx.Err() != nil {
		w.rejected.Add(1)
		return false
	}

	select {
	case w.writeChan <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		w.rejected.Add(1)
		return false
	}
}

// Pending returns the number of operations waiting in the buffer.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Processed returns the number of writes the handler completed.
func (w *AsyncWriter) Processed() int64 {
	return w.processed.Load()
}

// Failed returns the number of writes the handler rejected.
func (w *AsyncWriter) Failed() int64 {
	return w.failed.Load()
}

// Rejected returns the number of writes refused by Write.
func (w *AsyncWriter) Rejected() int64 {
	return w.rejected.Load()
}

// Stop signals the background goroutine and waits for the buffer to drain.
func (w *AsyncWriter) Stop() {
	w.cancel()
	w.wg.Wait()
}

// StopWithTimeout stops the writer, waiting at most timeout for the drain.
// Returns true if the drain finished in time.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsStarted returns whether the background processor is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && w.ctx.Err() == nil
}
