package domain

import (
	"context"
	"errors"
	"time"
)

// OrientationSample is one head-pose measurement in degrees.
type OrientationSample struct {
	Timestamp time.Time `json:"timestamp"`
	Pitch     float64   `json:"x"`
	Yaw       float64   `json:"y"`
	Roll      float64   `json:"z"`
}

// AttemptRecord is the outcome of one face verification run.
type AttemptRecord struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"userId"`
	Timestamp     time.Time           `json:"timestamp"`
	Success       bool                `json:"success"`
	FailureReason string              `json:"failureReason,omitempty"`
	Samples       []OrientationSample `json:"samples,omitempty"`
	// SamplesRef points at the sample payload in the sample store, if any.
	SamplesRef string `json:"samplesRef,omitempty"`
}

// Validate checks the success/samples and failure/reason invariants.
func (r *AttemptRecord) Validate() error {
	if r.UserID == 0 {
		return errors.New("attempt: missing user id")
	}
	if r.Success && len(r.Samples) == 0 {
		return errors.New("attempt: successful attempt without samples")
	}
	if !r.Success && r.FailureReason == "" {
		return errors.New("attempt: failed attempt without reason")
	}
	return nil
}

// StoredSample is an orientation sample read back from a sample store,
// together with the time the batch it belongs to was recorded.
type StoredSample struct {
	OrientationSample
	RecordedAt time.Time `json:"recordedAt"`
}

// AttemptRepository is the port for the append-only login history.
type AttemptRepository interface {
	AppendAttempt(ctx context.Context, rec AttemptRecord) (int64, error)
	// ListAttempts returns the user's attempts, oldest first. A limit <= 0
	// returns all of them.
	ListAttempts(ctx context.Context, userID int64, limit int) ([]AttemptRecord, error)
}

// SampleStore is the port for the per-user append-only orientation payload.
// It is kept separate from the attempt metadata.
type SampleStore interface {
	AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []OrientationSample) (string, error)
	ListSamples(ctx context.Context, userID int64) ([]StoredSample, error)
}
