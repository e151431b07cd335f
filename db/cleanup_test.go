package db

import (
	"context"
	"testing"
	"time"
)

func insertAt(t *testing.T, d *Database, requestID, createdAt string) {
	t.Helper()
	_, err := d.ExecContext(context.Background(),
		"INSERT INTO operations (request_id, operation, status, created_at) VALUES (?, ?, ?, ?)",
		requestID, OperationEncode, StatusSuccess, createdAt)
	if err != nil {
		t.Fatalf("insert %s: %v", requestID, err)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	repo := NewRepository(d, nil)

	insertAt(t, d, "ancient", "2000-01-01 00:00:00")
	insertAt(t, d, "old", time.Now().UTC().AddDate(0, 0, -45).Format(sqliteTimeLayout))
	insertAt(t, d, "recent", time.Now().UTC().AddDate(0, 0, -3).Format(sqliteTimeLayout))
	if _, err := repo.InsertOperation(ctx, sampleRecord("now", OperationDecode, StatusSuccess)); err != nil {
		t.Fatal(err)
	}

	result, err := d.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", result.Deleted)
	}
	if !result.Vacuumed {
		t.Error("Vacuumed = false after deleting rows")
	}

	remaining, err := repo.QueryRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d records, want 2", len(remaining))
	}
	for _, rec := range remaining {
		if rec.RequestID == "ancient" || rec.RequestID == "old" {
			t.Errorf("record %s survived cleanup", rec.RequestID)
		}
	}

	result, err = d.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if result.Deleted != 0 || result.Vacuumed {
		t.Errorf("second Cleanup() = %+v, want nothing deleted", result)
	}
}

func TestCleanup_Errors(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.Cleanup(context.Background(), -1); err == nil {
		t.Error("expected error for negative retention")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Cleanup(ctx, 30); err == nil {
		t.Error("expected error for cancelled context")
	}

	d.Close()
	if _, err := d.Cleanup(context.Background(), 30); err == nil {
		t.Error("expected error on closed database")
	}
}

func TestStartCleanupScheduler(t *testing.T) {
	d := openTestDB(t)
	insertAt(t, d, "ancient", "2000-01-01 00:00:00")

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan CleanupResult, 4)

	done := d.StartCleanupScheduler(ctx, CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      time.Hour,
		OnCleanup: func(result CleanupResult, err error) {
			if err == nil {
				results <- result
			}
		},
	})

	select {
	case r := <-results:
		if r.Deleted != 1 {
			t.Errorf("initial run deleted %d, want 1", r.Deleted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial cleanup did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
