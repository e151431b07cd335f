package metrics

// Collector is the read/write surface the API layer uses. Implementations
// must be safe for concurrent use and return zero values for anything not
// yet recorded.
type Collector interface {
	RecordOperation(op OperationRecord)
	GetOperationMetrics() OperationMetrics
	GetRecentOperations(limit int) []OperationRecord

	UpdateModelStatus(status ModelStatus)
	GetModelStatus() ModelStatus

	UpdateServingStatus(status ServingStatus)
	GetServingStatus() ServingStatus

	GetSystemStatus() SystemStatus
	MarkStopped()
}
