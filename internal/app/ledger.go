package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liveauth/internal/domain"

	"go.uber.org/zap"
)

// ErrPersistence indicates that an attempt or its samples could not be stored.
var ErrPersistence = errors.New("persistence failure")

// AttemptLedger is the append-only record of face verification outcomes.
// Sample payloads and attempt metadata live in separate stores and are only
// joined by user id, timestamp and the payload reference.
type AttemptLedger struct {
	attempts domain.AttemptRepository
	samples  domain.SampleStore
	log      *zap.Logger
	now      func() time.Time
}

// NewAttemptLedger creates a ledger on top of the given stores.
func NewAttemptLedger(attempts domain.AttemptRepository, samples domain.SampleStore, log *zap.Logger) *AttemptLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptLedger{
		attempts: attempts,
		samples:  samples,
		log:      log,
		now:      time.Now,
	}
}

// Record appends one attempt. For a successful attempt the samples are
// written to the sample store first and the returned reference is kept on
// the metadata row. Store errors are wrapped with ErrPersistence.
func (l *AttemptLedger) Record(ctx context.Context, userID int64, success bool, reason string, samples []domain.OrientationSample) (domain.AttemptRecord, error) {
	rec := domain.AttemptRecord{
		UserID:    userID,
		Timestamp: l.now(),
		Success:   success,
	}
	if success {
		rec.Samples = append([]domain.OrientationSample(nil), samples...)
	} else {
		rec.FailureReason = reason
	}
	if err := rec.Validate(); err != nil {
		return domain.AttemptRecord{}, err
	}

	if rec.Success {
		ref, err := l.samples.AppendSamples(ctx, userID, rec.Timestamp, rec.Samples)
		if err != nil {
			return domain.AttemptRecord{}, fmt.Errorf("%w: append samples: %w", ErrPersistence, err)
		}
		rec.SamplesRef = ref
	}

	id, err := l.attempts.AppendAttempt(ctx, rec)
	if err != nil {
		if rec.SamplesRef != "" {
			// The payload stays behind without a metadata row.
			l.log.Warn("orphaned sample payload", zap.Int64("user_id", userID), zap.String("ref", rec.SamplesRef))
		}
		return domain.AttemptRecord{}, fmt.Errorf("%w: append attempt: %w", ErrPersistence, err)
	}
	rec.ID = id

	l.log.Info("attempt recorded",
		zap.Int64("user_id", userID),
		zap.Bool("success", rec.Success),
		zap.Int("samples", len(rec.Samples)),
		zap.String("reason", rec.FailureReason),
	)
	return rec, nil
}

// History returns the most recent attempts of a user, oldest first.
func (l *AttemptLedger) History(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	recs, err := l.attempts.ListAttempts(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return recs, nil
}

// Samples returns every stored orientation sample of a user.
func (l *AttemptLedger) Samples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	samples, err := l.samples.ListSamples(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return samples, nil
}
