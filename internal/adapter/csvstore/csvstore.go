// Package csvstore keeps orientation samples in one append-only CSV file per
// user, named user_<id>_vectors.csv.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"liveauth/internal/domain"
)

var header = []string{"timestamp", "x", "y", "z", "recorded_at"}

// Store writes sample files below a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ domain.SampleStore = (*Store)(nil)

// New creates the directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// FileName returns the sample file name for a user.
func FileName(userID int64) string {
	return fmt.Sprintf("user_%d_vectors.csv", userID)
}

func (s *Store) path(userID int64) string {
	return filepath.Join(s.dir, FileName(userID))
}

// AppendSamples appends one row per sample. The header is written when the
// file is created. The reference is "<file>@<recorded_at>".
func (s *Store) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(userID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open sample file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat sample file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return "", err
		}
	}

	rec := recordedAt.UTC().Format(time.RFC3339Nano)
	for _, smp := range samples {
		row := []string{
			smp.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(smp.Pitch),
			formatFloat(smp.Yaw),
			formatFloat(smp.Roll),
			rec,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write sample file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync sample file: %w", err)
	}
	return FileName(userID) + "@" + rec, nil
}

// ListSamples reads back every sample of a user. A missing file yields no
// samples.
func (s *Store) ListSamples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	var out []domain.StoredSample
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sample file: %w", err)
		}
		if line == 1 {
			continue
		}
		smp, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", FileName(userID), line, err)
		}
		out = append(out, smp)
	}
	return out, nil
}

func parseRow(row []string) (domain.StoredSample, error) {
	var s domain.StoredSample
	var err error
	if s.Timestamp, err = time.Parse(time.RFC3339Nano, row[0]); err != nil {
		return s, err
	}
	if s.Pitch, err = strconv.ParseFloat(row[1], 64); err != nil {
		return s, err
	}
	if s.Yaw, err = strconv.ParseFloat(row[2], 64); err != nil {
		return s, err
	}
	if s.Roll, err = strconv.ParseFloat(row[3], 64); err != nil {
		return s, err
	}
	if s.RecordedAt, err = time.Parse(time.RFC3339Nano, row[4]); err != nil {
		return s, err
	}
	return s, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
