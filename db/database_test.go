package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "stega.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewSQLiteConnection(t *testing.T) {
	t.Run("enables WAL and foreign keys", func(t *testing.T) {
		conn, err := NewSQLiteConnection(DefaultConnectionConfig(filepath.Join(t.TempDir(), "wal.db")))
		if err != nil {
			t.Fatalf("NewSQLiteConnection() error = %v", err)
		}
		defer conn.Close()

		var mode string
		if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatal(err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want wal", mode)
		}

		var fk int
		if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if fk != 1 {
			t.Errorf("foreign_keys = %d, want 1", fk)
		}

		if got := conn.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("MaxOpenConnections = %d, want 1", got)
		}
	})

	t.Run("requires path", func(t *testing.T) {
		if _, err := NewSQLiteConnection(ConnectionConfig{}); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

func TestOpen(t *testing.T) {
	t.Run("creates parent directories and schema", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "stega.db")
		d, err := Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer d.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if d.Path() != path {
			t.Errorf("Path() = %q, want %q", d.Path(), path)
		}

		var name string
		err = d.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='operations'").Scan(&name)
		if err != nil {
			t.Errorf("operations table missing: %v", err)
		}
	})

	t.Run("reopen keeps schema version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stega.db")
		first, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}
		first.Close()

		second, err := Open(path)
		if err != nil {
			t.Fatalf("second Open() error = %v", err)
		}
		defer second.Close()

		version, dirty, err := second.Version()
		if err != nil {
			t.Fatalf("Version() error = %v", err)
		}
		if version != SchemaVersion || dirty {
			t.Errorf("Version() = %d dirty=%v, want %d clean", version, dirty, SchemaVersion)
		}
	})

	t.Run("requires path", func(t *testing.T) {
		if _, err := Open(""); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

func TestMigrateDown(t *testing.T) {
	d := openTestDB(t)
	d.Close()

	if err := migrateFromPath(d.Path(), func(conn *sql.DB) error { return MigrateDown(conn, -1) }); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var version uint
	err := migrateFromPath(d.Path(), func(conn *sql.DB) error {
		var err error
		version, _, err = MigrationVersion(conn)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("version after full rollback = %d, want 0", version)
	}

	if err := migrateFromPath(d.Path(), MigrateUp); err != nil {
		t.Fatalf("MigrateUp() after rollback error = %v", err)
	}
}

func TestDatabaseClose(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if err := d.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := d.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close = %v, want ErrClosed", err)
	}
	if _, err := d.ExecContext(ctx, "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("ExecContext() after close = %v, want ErrClosed", err)
	}
	if _, err := d.QueryContext(ctx, "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("QueryContext() after close = %v, want ErrClosed", err)
	}
}
