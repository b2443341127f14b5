package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const jobColumns = `id, owner_id, title, source_type, audio_ref, status, provider_job_id,
	transcript_raw, transcript_text, error_message, duration_seconds, speaker_count, created_at, updated_at`

// CreateJob inserts a new job row
func (mdb *MetadataDB) CreateJob(ctx context.Context, job *types.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	query := `
	INSERT INTO jobs (id, owner_id, title, source_type, audio_ref, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return mdb.withRetry(ctx, "create job", func() error {
		_, err := mdb.db.ExecContext(ctx, query, job.ID, job.OwnerID, job.Title, job.SourceType,
			job.AudioRef, string(job.Status), toMillis(job.CreatedAt), toMillis(job.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job scoped to its owner
func (mdb *MetadataDB) GetJob(ctx context.Context, id, ownerID string) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND owner_id = ?`

	var job *types.Job
	err := mdb.withRetry(ctx, "get job", func() error {
		var err error
		job, err = scanJob(mdb.db.QueryRowContext(ctx, query, id, ownerID))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// FindJob retrieves a job by id regardless of owner, for administrative callers
func (mdb *MetadataDB) FindJob(ctx context.Context, id string) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	var job *types.Job
	err := mdb.withRetry(ctx, "find job", func() error {
		var err error
		job, err = scanJob(mdb.db.QueryRowContext(ctx, query, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return job, nil
}

// ListByStatus returns every job in one of the given statuses, oldest first
func (mdb *MetadataDB) ListByStatus(ctx context.Context, statuses ...types.JobStatus) ([]*types.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	where, args := statusIn(statuses)
	return mdb.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where+` ORDER BY created_at ASC`, args...)
}

// ListByOwner returns an owner's jobs, newest first, optionally filtered by status
func (mdb *MetadataDB) ListByOwner(ctx context.Context, ownerID string, status types.JobStatus, limit int) ([]*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	return mdb.listJobs(ctx, query, args...)
}

// ListCreatedBefore returns jobs in status created strictly before cutoff
func (mdb *MetadataDB) ListCreatedBefore(ctx context.Context, status types.JobStatus, cutoff time.Time) ([]*types.Job, error) {
	return mdb.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? AND created_at < ? ORDER BY created_at ASC`,
		string(status), toMillis(cutoff))
}

// ListCreatedSince returns jobs in status created at or after cutoff
func (mdb *MetadataDB) ListCreatedSince(ctx context.Context, status types.JobStatus, cutoff time.Time) ([]*types.Job, error) {
	return mdb.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? AND created_at >= ? ORDER BY created_at ASC`,
		string(status), toMillis(cutoff))
}

// UpdateJob applies a partial update; false means no matching row
func (mdb *MetadataDB) UpdateJob(ctx context.Context, id, ownerID string, upd types.JobUpdate) (bool, error) {
	return mdb.UpdateJobIf(ctx, id, ownerID, nil, upd)
}

// UpdateJobIf applies a partial update only while the job's current status is one of from.
// An empty from list means unconditional. The check and the write are one statement.
func (mdb *MetadataDB) UpdateJobIf(ctx context.Context, id, ownerID string, from []types.JobStatus, upd types.JobUpdate) (bool, error) {
	if upd.Empty() {
		return false, fmt.Errorf("empty job update")
	}

	sets, args := updateClauses(upd)
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(time.Now()))

	query := `UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_id = ?`
	args = append(args, id, ownerID)
	if len(from) > 0 {
		where, statusArgs := statusIn(from)
		query += ` AND ` + where
		args = append(args, statusArgs...)
	}

	var affected int64
	err := mdb.withRetry(ctx, "update job", func() error {
		res, err := mdb.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return affected > 0, nil
}

// DeleteJob removes a job and its speaker labels
func (mdb *MetadataDB) DeleteJob(ctx context.Context, id, ownerID string) (bool, error) {
	var deleted bool
	err := mdb.withRetry(ctx, "delete job", func() error {
		tx, err := mdb.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM speaker_labels WHERE job_id = ?`, id); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return deleted, nil
}

func (mdb *MetadataDB) listJobs(ctx context.Context, query string, args ...interface{}) ([]*types.Job, error) {
	var jobs []*types.Job
	err := mdb.withRetry(ctx, "list jobs", func() error {
		jobs = nil
		rows, err := mdb.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job                  types.Job
		status               string
		providerID, raw      sql.NullString
		text, errMsg         sql.NullString
		duration             sql.NullFloat64
		speakers             sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(&job.ID, &job.OwnerID, &job.Title, &job.SourceType, &job.AudioRef, &status,
		&providerID, &raw, &text, &errMsg, &duration, &speakers, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatus(status)
	if providerID.Valid {
		job.ProviderJobID = types.Ptr(providerID.String)
	}
	if raw.Valid {
		job.TranscriptRaw = json.RawMessage(raw.String)
	}
	if text.Valid {
		job.TranscriptText = types.Ptr(text.String)
	}
	if errMsg.Valid {
		job.ErrorMessage = types.Ptr(errMsg.String)
	}
	if duration.Valid {
		job.DurationSeconds = types.Ptr(duration.Float64)
	}
	if speakers.Valid {
		job.SpeakerCount = types.Ptr(int(speakers.Int64))
	}
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return &job, nil
}

func updateClauses(upd types.JobUpdate) ([]string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.ProviderJobID != nil {
		sets = append(sets, "provider_job_id = ?")
		args = append(args, *upd.ProviderJobID)
	}
	if upd.TranscriptRaw != nil {
		sets = append(sets, "transcript_raw = ?")
		args = append(args, string(upd.TranscriptRaw))
	}
	if upd.ClearTranscriptText {
		sets = append(sets, "transcript_text = NULL")
	} else if upd.TranscriptText != nil {
		sets = append(sets, "transcript_text = ?")
		args = append(args, *upd.TranscriptText)
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *upd.ErrorMessage)
	}
	if upd.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *upd.DurationSeconds)
	}
	if upd.SpeakerCount != nil {
		sets = append(sets, "speaker_count = ?")
		args = append(args, *upd.SpeakerCount)
	}
	return sets, args
}

func statusIn(statuses []types.JobStatus) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = string(s)
	}
	return "status IN (" + strings.Join(marks, ", ") + ")", args
}
