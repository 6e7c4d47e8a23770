// Package replay plays back recorded landmark streams so the login flow can
// run without a webcam or a vision runtime.
//
// A recording is a JSON-lines file. Each line is one frame:
//
//	{"width":640,"height":480,"hands":[{"8":{"x":0.41,"y":0.30}, ...}],"faces":[{"1":{"x":0.5,"y":0.52,"z":-0.03}, ...}]}
//
// Coordinates are normalized to 0..1 as a landmark model reports them; the
// detectors scale them to pixels.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"liveauth/internal/domain"
)

// Record is one line of a recording.
type Record struct {
	Width  int                  `json:"width"`
	Height int                  `json:"height"`
	Hands  []domain.LandmarkSet `json:"hands,omitempty"`
	Faces  []domain.LandmarkSet `json:"faces,omitempty"`
}

// Camera opens a recording file afresh on every Open.
type Camera struct {
	Path string
	// Interval is the delay between frames. Zero plays as fast as possible.
	Interval time.Duration
	now      func() time.Time
}

var _ domain.Camera = (*Camera)(nil)

// NewCamera creates a camera replaying path at fps frames per second.
func NewCamera(path string, fps float64) *Camera {
	c := &Camera{Path: path, now: time.Now}
	if fps > 0 {
		c.Interval = time.Duration(float64(time.Second) / fps)
	}
	return c
}

// Open starts a new pass over the recording.
func (c *Camera) Open(ctx context.Context) (domain.FrameSource, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	now := c.now
	if now == nil {
		now = time.Now
	}
	return &source{f: f, sc: sc, interval: c.Interval, now: now}, nil
}

type source struct {
	f        *os.File
	sc       *bufio.Scanner
	interval time.Duration
	now      func() time.Time
	seq      int
	last     time.Time
	closed   bool
}

// Next returns the next frame, waiting for the frame interval first.
// Frame.Data carries the raw record.
func (s *source) Next(ctx context.Context) (domain.Frame, error) {
	if s.closed {
		return domain.Frame{}, io.ErrClosedPipe
	}
	if err := s.wait(ctx); err != nil {
		return domain.Frame{}, err
	}

	for s.sc.Scan() {
		line := s.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return domain.Frame{}, fmt.Errorf("recording line %d: %w", s.seq+1, err)
		}
		frame := domain.Frame{
			Seq:        s.seq,
			Width:      rec.Width,
			Height:     rec.Height,
			Data:       append([]byte(nil), line...),
			CapturedAt: s.now(),
		}
		s.seq++
		s.last = frame.CapturedAt
		return frame, nil
	}
	if err := s.sc.Err(); err != nil {
		return domain.Frame{}, err
	}
	return domain.Frame{}, io.EOF
}

func (s *source) wait(ctx context.Context) error {
	if s.interval <= 0 || s.last.IsZero() {
		return ctx.Err()
	}
	d := s.interval - s.now().Sub(s.last)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Release closes the file. It is safe to call more than once.
func (s *source) Release() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// Kind selects which landmark sets a Detector reports.
type Kind int

const (
	Hands Kind = iota
	Faces
)

func (k Kind) String() string {
	if k == Hands {
		return "hands"
	}
	return "faces"
}

// Detector reads landmark sets out of replayed frames.
type Detector struct {
	kind Kind
}

var _ domain.LandmarkDetector = (*Detector)(nil)

// NewDetector creates a detector for the given kind.
func NewDetector(kind Kind) *Detector {
	return &Detector{kind: kind}
}

// Detect decodes the frame and returns its landmark sets in pixels.
func (d *Detector) Detect(ctx context.Context, frame domain.Frame) ([]domain.LandmarkSet, error) {
	var rec Record
	if err := json.Unmarshal(frame.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", frame.Seq, err)
	}
	sets := rec.Hands
	if d.kind == Faces {
		sets = rec.Faces
	}
	out := make([]domain.LandmarkSet, 0, len(sets))
	for _, s := range sets {
		out = append(out, s.Scale(frame.Width, frame.Height))
	}
	return out, nil
}

// Close is a no-op.
func (d *Detector) Close() error { return nil }
