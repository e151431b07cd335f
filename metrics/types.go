// Package metrics keeps in-memory counters for the status endpoint and
// the live event stream.
package metrics

import "time"

// OperationRecord is one finished encode or decode request.
type OperationRecord struct {
	// RequestID ties the record to the request log and the history row
	RequestID string `json:"request_id"`

	// Operation is OperationEncode or OperationDecode
	Operation string `json:"operation"`

	// Model is the model directory name used, empty if resolution failed
	Model string `json:"model,omitempty"`

	// Status is StatusSuccess or StatusError
	Status string `json:"status"`

	// Found reports whether a decode recovered a message
	Found bool `json:"found"`

	// Timestamp is when the request finished
	Timestamp time.Time `json:"timestamp"`

	// Duration is the total request time
	Duration time.Duration `json:"duration"`

	// LockWait is the time spent waiting for the model
	LockWait time.Duration `json:"lock_wait"`

	// ErrorMsg holds the failure detail when Status is StatusError
	ErrorMsg string `json:"error_msg,omitempty"`
}

// ModelStatus is the state of the loaded model.
type ModelStatus struct {
	Name        string    `json:"name,omitempty"`
	Path        string    `json:"path,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Loaded      bool      `json:"loaded"`
	Loads       int64     `json:"loads"`
	CanEmbed    bool      `json:"can_embed"`
	CanReveal   bool      `json:"can_reveal"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
}

// ServingStatus is the result of the latest model server probe.
type ServingStatus struct {
	URL       string        `json:"url"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// SystemStatus represents the overall system health.
type SystemStatus struct {
	// Health is SystemHealthRunning, SystemHealthDegraded or SystemHealthStopped
	Health string `json:"health"`

	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// OperationMetrics aggregates every recorded operation.
type OperationMetrics struct {
	TotalProcessed int64                            `json:"total_processed"`
	TotalSuccess   int64                            `json:"total_success"`
	TotalErrors    int64                            `json:"total_errors"`
	ByOperation    map[string]*OperationTypeMetrics `json:"by_operation"`
}

// OperationTypeMetrics aggregates one operation type.
type OperationTypeMetrics struct {
	Count int64 `json:"count"`

	// SuccessRate is the percentage of successful operations (0-100)
	SuccessRate float64 `json:"success_rate"`

	AvgDuration time.Duration `json:"avg_duration"`
	AvgLockWait time.Duration `json:"avg_lock_wait"`

	// Found counts decodes that recovered a message
	Found int64 `json:"found"`
}

// Operation names.
const (
	OperationEncode = "encode"
	OperationDecode = "decode"
)

// Status values for OperationRecord.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Health values for SystemStatus.
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
	SystemHealthStopped  = "stopped"
)
