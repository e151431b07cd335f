package metrics

import (
	"sync"
	"time"
)

// Store is the in-memory Collector. Recent operations live in a fixed-size
// ring; aggregates cover the whole process lifetime.
type Store struct {
	mu sync.RWMutex

	history []OperationRecord
	histCap int
	head    int
	size    int

	totalOps     int64
	totalSuccess int64
	totalErrors  int64
	byOperation  map[string]*operationStats

	model   ModelStatus
	serving ServingStatus
	stopped bool

	startTime time.Time
	version   string
}

type operationStats struct {
	count         int64
	successCount  int64
	foundCount    int64
	totalDuration time.Duration
	totalLockWait time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of operations kept for GetRecentOperations
	HistoryCapacity int
	Version         string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity: 100,
		Version:         "dev",
	}
}

// NewStore creates a Store; startTime anchors the reported uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		history:     make([]OperationRecord, capacity),
		histCap:     capacity,
		byOperation: make(map[string]*operationStats),
		startTime:   startTime,
		version:     config.Version,
	}
}

// RecordOperation adds op to the ring and the aggregates.
func (s *Store) RecordOperation(op OperationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = op
	s.head = (s.head + 1) % s.histCap
	if s.size < s.histCap {
		s.size++
	}

	s.totalOps++
	switch op.Status {
	case StatusSuccess:
		s.totalSuccess++
	case StatusError:
		s.totalErrors++
	}

	stats, ok := s.byOperation[op.Operation]
	if !ok {
		stats = &operationStats{}
		s.byOperation[op.Operation] = stats
	}
	stats.count++
	if op.Status == StatusSuccess {
		stats.successCount++
	}
	if op.Found {
		stats.foundCount++
	}
	stats.totalDuration += op.Duration
	stats.totalLockWait += op.LockWait
}

// GetOperationMetrics returns the lifetime aggregates.
func (s *Store) GetOperationMetrics() OperationMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := OperationMetrics{
		TotalProcessed: s.totalOps,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByOperation:    make(map[string]*OperationTypeMetrics, len(s.byOperation)),
	}

	for name, stats := range s.byOperation {
		if stats.count == 0 {
			continue
		}
		m.ByOperation[name] = &OperationTypeMetrics{
			Count:       stats.count,
			SuccessRate: float64(stats.successCount) / float64(stats.count) * 100,
			AvgDuration: stats.totalDuration / time.Duration(stats.count),
			AvgLockWait: stats.totalLockWait / time.Duration(stats.count),
			Found:       stats.foundCount,
		}
	}
	return m
}

// GetRecentOperations returns up to limit operations, newest first.
func (s *Store) GetRecentOperations(limit int) []OperationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []OperationRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]OperationRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - 1 - i + s.histCap) % s.histCap
		result[i] = s.history[idx]
	}
	return result
}

// UpdateModelStatus replaces the model snapshot.
func (s *Store) UpdateModelStatus(status ModelStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = status
}

// GetModelStatus returns the model snapshot.
func (s *Store) GetModelStatus() ModelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// UpdateServingStatus replaces the model server snapshot.
func (s *Store) UpdateServingStatus(status ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving = status
}

// GetServingStatus returns the model server snapshot.
func (s *Store) GetServingStatus() ServingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

// MarkStopped flags the system as shutting down.
func (s *Store) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// GetSystemStatus reports degraded once a probe has found the model
// server unreachable.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	switch {
	case s.stopped:
		health = SystemHealthStopped
	case !s.serving.LastCheck.IsZero() && !s.serving.Reachable:
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*Store)(nil)
