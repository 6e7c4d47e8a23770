package domain

import (
	"context"
	"time"
)

// Frame is one image acquired from a camera. Data is opaque to the core and
// only interpreted by a LandmarkDetector.
type Frame struct {
	Seq        int
	Width      int
	Height     int
	Data       []byte
	CapturedAt time.Time
}

// Camera opens a fresh frame stream. Every login phase opens its own stream
// and releases it on exit.
type Camera interface {
	Open(ctx context.Context) (FrameSource, error)
}

// FrameSource yields frames on demand. Next returns io.EOF when the stream is
// exhausted. Release must be safe to call more than once.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Release() error
}

// LandmarkDetector finds zero or more landmark sets in a frame. Points are
// returned in pixel-scaled coordinates.
type LandmarkDetector interface {
	Detect(ctx context.Context, frame Frame) ([]LandmarkSet, error)
	Close() error
}

// CredentialVerifier checks an identifier/credential pair and returns the
// matching user id.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, credential string) (int64, error)
}
