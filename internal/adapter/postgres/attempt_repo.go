package postgres

import (
	"context"
	"fmt"
	"time"

	"liveauth/internal/domain"

	"github.com/google/uuid"
)

var _ domain.AttemptRepository = (*DB)(nil)
var _ domain.SampleStore = (*DB)(nil)

// AppendAttempt inserts a login_history row and returns its id.
func (d *DB) AppendAttempt(ctx context.Context, rec domain.AttemptRecord) (int64, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO login_history (user_id, login_timestamp, success, failure_reason, samples_ref) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		rec.UserID, rec.Timestamp, rec.Success, rec.FailureReason, rec.SamplesRef,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append attempt: %w", err)
	}
	return id, nil
}

// ListAttempts returns the user's most recent attempts, oldest first.
func (d *DB) ListAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	q := `SELECT id, user_id, login_timestamp, success, failure_reason, samples_ref FROM (
		SELECT id, user_id, login_timestamp, success, failure_reason, samples_ref
		FROM login_history WHERE user_id = $1 ORDER BY id DESC LIMIT $2
	) h ORDER BY id`
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := d.sql.QueryContext(ctx, q, userID, lim)
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
	return out, rows.Err()
}

// AppendSamples inserts one orientation_samples row per sample inside a
// transaction. The returned reference is the batch id shared by the rows.
func (d *DB) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	batch := uuid.NewString()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("append samples: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO orientation_samples (user_id, batch_id, sample_timestamp, x, y, z, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
	)
	if err != nil {
		return "", fmt.Errorf("append samples: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, userID, batch, s.Timestamp, s.Pitch, s.Yaw, s.Roll, recordedAt); err != nil {
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
		"SELECT sample_timestamp, x, y, z, recorded_at FROM orientation_samples WHERE user_id = $1 ORDER BY id",
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
