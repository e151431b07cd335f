package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Operation names stored in the history.
const (
	OperationEncode = "encode"
	OperationDecode = "decode"
)

// Status values stored in the history.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// sqliteTimeLayout is the format CURRENT_TIMESTAMP writes.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// DefaultQueryLimit applies when a query asks for zero or fewer rows.
const DefaultQueryLimit = 50

// OperationRecord is one row of the operations table.
type OperationRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model,omitempty"`
	Message      string    `json:"message,omitempty"`
	Found        bool      `json:"found"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	LockWaitMS   int64     `json:"lock_wait_ms"`
	ImageBytes   int64     `json:"image_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// OperationCount aggregates history rows by operation and status.
type OperationCount struct {
	Operation     string  `json:"operation"`
	Status        string  `json:"status"`
	Count         int64   `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Repository reads and writes operation history. With a started
// AsyncWriter, inserts are queued; otherwise, or when the queue is full,
// they run synchronously.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewRepository creates a Repository. asyncWriter may be nil.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{
		db:          db,
		asyncWriter: asyncWriter,
	}
}

// EnableAsync starts an AsyncWriter that executes this repository's
// inserts and routes future inserts through it. Stop the returned writer
// on shutdown to drain pending rows.
func (r *Repository) EnableAsync(config AsyncWriterConfig) *AsyncWriter {
	w := NewAsyncWriterWithConfig(r.AsyncWriteHandler(), config)
	w.Start()
	r.asyncWriter = w
	return w
}

type asyncInsertOp struct {
	query string
	args  []any
}

const insertOperationQuery = `
	INSERT INTO operations (
		request_id, operation, model, message, found, status,
		error_message, duration_ms, lock_wait_ms, image_bytes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertOperation stores rec. It returns the new row ID, or 0 when the
// write was queued. A full queue does not lose the row: it is written
// synchronously instead.
func (r *Repository) InsertOperation(ctx context.Context, rec OperationRecord) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	if rec.RequestID == "" || rec.Operation == "" || rec.Status == "" {
		return 0, fmt.Errorf("request_id, operation and status are required")
	}

	args := []any{
		rec.RequestID,
		rec.Operation,
		nullString(rec.Model),
		nullString(rec.Message),
		rec.Found,
		rec.Status,
		nullString(rec.ErrorMessage),
		rec.DurationMS,
		rec.LockWaitMS,
		rec.ImageBytes,
	}

	if r.asyncWriter != nil && r.asyncWriter.IsStarted() {
		if r.asyncWriter.Write(asyncInsertOp{query: insertOperationQuery, args: args}) {
			return 0, nil
		}
	}

	result, err := r.db.ExecContext(ctx, insertOperationQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

const selectOperationColumns = `
	SELECT id, request_id, operation, COALESCE(model, ''), COALESCE(message, ''),
		found, status, COALESCE(error_message, ''), duration_ms, lock_wait_ms,
		image_bytes, created_at
	FROM operations`

// QueryRecent returns the newest records first.
func (r *Repository) QueryRecent(ctx context.Context, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return r.query(ctx, selectOperationColumns+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
}

// QueryByOperation returns the newest records of one operation type.
func (r *Repository) QueryByOperation(ctx context.Context, operation string, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return r.query(ctx, selectOperationColumns+" WHERE operation = ? ORDER BY created_at DESC, id DESC LIMIT ?", operation, limit)
}

// QueryByRequestID returns the records written for one HTTP request.
func (r *Repository) QueryByRequestID(ctx context.Context, requestID string) ([]OperationRecord, error) {
	return r.query(ctx, selectOperationColumns+" WHERE request_id = ? ORDER BY id ASC", requestID)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]OperationRecord, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	records := make([]OperationRecord, 0)
	for rows.Next() {
		var rec OperationRecord
		var createdAt string

		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Operation,
			&rec.Model,
			&rec.Message,
			&rec.Found,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.DurationMS,
			&rec.LockWaitMS,
			&rec.ImageBytes,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}

		rec.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return records, nil
}

// CountOperations returns the total number of stored records.
func (r *Repository) CountOperations(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx, "SELECT COUNT(*) FROM operations")
	if err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to count operations: %w", err)
		}
	}
	return count, rows.Err()
}

// CountByOperation groups the history by operation and status.
func (r *Repository) CountByOperation(ctx context.Context) ([]OperationCount, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT operation, status, COUNT(*), COALESCE(AVG(duration_ms), 0)
		FROM operations
		GROUP BY operation, status
		ORDER BY operation, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate operations: %w", err)
	}
	defer rows.Close()

	counts := make([]OperationCount, 0)
	for rows.Next() {
		var c OperationCount
		if err := rows.Scan(&c.Operation, &c.Status, &c.Count, &c.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan operation count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// AsyncWriteHandler returns the WriteHandler that executes queued inserts.
func (r *Repository) AsyncWriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		insertOp, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("invalid operation type: expected asyncInsertOp")
		}

		_, err := r.db.ExecContext(context.Background(), insertOp.query, insertOp.args...)
		return err
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
