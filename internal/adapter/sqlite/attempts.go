package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"liveauth/internal/domain"

	"github.com/google/uuid"
)

var _ domain.AttemptRepository = (*DB)(nil)
var _ domain.SampleStore = (*DB)(nil)

// AppendAttempt inserts a login_history row and returns its id.
func (d *DB) AppendAttempt(ctx context.Context, rec domain.AttemptRecord) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		"INSERT INTO login_history (user_id, login_timestamp, success, failure_reason, samples_ref) VALUES (?, ?, ?, ?, ?)",
		rec.UserID, rec.Timestamp.UTC(), rec.Success, rec.FailureReason, rec.SamplesRef,
	)
	if err != nil {
		return 0, fmt.Errorf("append attempt: %w", err)
	}
	return res.LastInsertId()
}

// ListAttempts returns the user's most recent attempts, oldest first.
func (d *DB) ListAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, user_id, login_timestamp, success, failure_reason, samples_ref FROM login_history WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.AttemptRecord
	for rows.Next() {
		var r domain.AttemptRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Timestamp, &r.Success, &r.FailureReason, &r.SamplesRef); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// AppendSamples stores one row per sample under a fresh batch id, which is
// returned as the payload reference.
func (d *DB) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	batch := uuid.NewString()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("append samples: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range samples {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO orientation_samples (user_id, batch_id, sample_timestamp, x, y, z, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			userID, batch, s.Timestamp.UTC(), s.Pitch, s.Yaw, s.Roll, recordedAt.UTC(),
		)
		if err != nil {
			return "", fmt.Errorf("append samples: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("append samples: commit: %w", err)
	}
	return batch, nil
}

// ListSamples returns every stored sample of a user in insertion order.
func (d *DB) ListSamples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT sample_timestamp, x, y, z, recorded_at FROM orientation_samples WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredSample
	for rows.Next() {
		var s domain.StoredSample
		if err := rows.Scan(&s.Timestamp, &s.Pitch, &s.Yaw, &s.Roll, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
