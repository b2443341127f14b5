package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// ListSpeakers returns the label mappings of a job ordered by label
func (mdb *MetadataDB) ListSpeakers(ctx context.Context, jobID string) ([]types.SpeakerLabel, error) {
	query := `
	SELECT job_id, label, display_name, created_at, updated_at
	FROM speaker_labels WHERE job_id = ? ORDER BY label
	`

	var labels []types.SpeakerLabel
	err := mdb.withRetry(ctx, "list speakers", func() error {
		labels = nil
		rows, err := mdb.db.QueryContext(ctx, query, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				l                    types.SpeakerLabel
				createdAt, updatedAt int64
			)
			if err := rows.Scan(&l.JobID, &l.Label, &l.DisplayName, &createdAt, &updatedAt); err != nil {
				return err
			}
			l.CreatedAt = fromMillis(createdAt)
			l.UpdatedAt = fromMillis(updatedAt)
			labels = append(labels, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	return labels, nil
}

// UpsertSpeaker creates the mapping for (jobID, label) or replaces its display name
func (mdb *MetadataDB) UpsertSpeaker(ctx context.Context, jobID, label, displayName string) (types.SpeakerLabel, error) {
	now := time.Now()
	query := `
	INSERT INTO speaker_labels (job_id, label, display_name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(job_id, label) DO UPDATE SET
		display_name = excluded.display_name,
		updated_at = excluded.updated_at
	RETURNING created_at
	`

	var createdAt int64
	err := mdb.withRetry(ctx, "upsert speaker", func() error {
		return mdb.db.QueryRowContext(ctx, query, jobID, label, displayName, toMillis(now), toMillis(now)).Scan(&createdAt)
	})
	if err != nil {
		return types.SpeakerLabel{}, fmt.Errorf("failed to save speaker %s: %w", label, err)
	}

	return types.SpeakerLabel{
		JobID:       jobID,
		Label:       label,
		DisplayName: displayName,
		CreatedAt:   fromMillis(createdAt),
		UpdatedAt:   fromMillis(toMillis(now)),
	}, nil
}

// DeleteSpeaker removes one mapping; false means it did not exist
func (mdb *MetadataDB) DeleteSpeaker(ctx context.Context, jobID, label string) (bool, error) {
	var affected int64
	err := mdb.withRetry(ctx, "delete speaker", func() error {
		res, err := mdb.db.ExecContext(ctx, `DELETE FROM speaker_labels WHERE job_id = ? AND label = ?`, jobID, label)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete speaker %s: %w", label, err)
	}
	return affected > 0, nil
}

// SpeakerNames returns the mapping as label -> display name
func (mdb *MetadataDB) SpeakerNames(ctx context.Context, jobID string) (map[string]string, error) {
	labels, err := mdb.ListSpeakers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(labels))
	for _, l := range labels {
		names[l.Label] = l.DisplayName
	}
	return names, nil
}
