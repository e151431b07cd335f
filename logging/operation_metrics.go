package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OperationMetrics describes one watermark operation for structured logs.
//
//	logger.Info("hide complete", logging.OperationFields(m))
type OperationMetrics struct {
	Operation string        `json:"operation"` // "hide", "reveal" or "load"
	Model     string        `json:"model"`
	RequestID string        `json:"request_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`

	// Found is set for reveals: whether a valid message was recovered.
	Found bool `json:"found"`

	// LockWait is the time spent waiting for the model.
	LockWait time.Duration `json:"lock_wait"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m OperationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", m.Operation)
	enc.AddString("model", m.Model)
	if m.RequestID != "" {
		enc.AddString("request_id", m.RequestID)
	}
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddInt64("lock_wait_ms", m.LockWait.Milliseconds())
	enc.AddBool("success", m.Success)
	if m.Operation == "reveal" {
		enc.AddBool("found", m.Found)
	}
	return nil
}

// OperationFields wraps m as a single "operation" field.
func OperationFields(m OperationMetrics) zap.Field {
	return zap.Object("operation", m)
}

// TimingFields returns start, end and duration fields.
func TimingFields(start, end time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.Duration("duration", end.Sub(start)),
	}
}

// OperationTimer measures one operation from creation to Stop.
type OperationTimer struct {
	metrics  OperationMetrics
	start    time.Time
	acquired time.Time
}

// StartOperation begins timing op on model.
func StartOperation(op, model string) *OperationTimer {
	now := time.Now()
	return &OperationTimer{
		metrics:  OperationMetrics{Operation: op, Model: model},
		start:    now,
		acquired: now,
	}
}

// Acquired marks the moment the model lock was obtained.
func (t *OperationTimer) Acquired() {
	t.acquired = time.Now()
	t.metrics.LockWait = t.acquired.Sub(t.start)
}

// SetModel records the model once it is known.
func (t *OperationTimer) SetModel(model string) {
	t.metrics.Model = model
}

// Stop finishes timing and returns the metrics.
func (t *OperationTimer) Stop(success, found bool) OperationMetrics {
	m := t.metrics
	m.Duration = time.Since(t.start)
	m.Success = success
	m.Found = found
	return m
}
