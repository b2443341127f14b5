package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const (
	busyTimeout  = 5 * time.Second
	busyAttempts = 5
	busyBackoff  = 50 * time.Millisecond
)

// MetadataDB handles SQLite database operations for jobs and speaker labels
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (and if needed creates) the database at dbPath
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	return openMetadataDB(dbPath, busyTimeout)
}

// openMetadataDB opens the database with SQLite waiting up to timeout on a
// locked database before withRetry takes over
func openMetadataDB(dbPath string, timeout time.Duration) (*MetadataDB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath, timeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL,
		audio_ref TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending','processing','completed','error')),
		provider_job_id TEXT,
		transcript_raw TEXT,
		transcript_text TEXT,
		error_message TEXT,
		duration_seconds REAL,
		speaker_count INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_owner_created_at ON jobs(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS speaker_labels (
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		display_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (job_id, label)
	);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

// withRetry runs fn again while SQLite reports the database as busy or locked.
// Callers above the storage layer only see ErrStoreContention once retries run out.
func (mdb *MetadataDB) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt >= busyAttempts {
			return fmt.Errorf("%s: %w: %v", op, types.ErrStoreContention, err)
		}
		log.Printf("Storage: %s busy (attempt %d/%d), retrying", op, attempt, busyAttempts)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(attempt) * busyBackoff):
		}
	}
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	// Errors surfaced without the typed wrapper still carry the message
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
