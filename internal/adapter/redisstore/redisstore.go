// Package redisstore keeps orientation samples in one Redis stream per user.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"liveauth/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements domain.SampleStore on Redis streams.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ domain.SampleStore = (*Store)(nil)

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, o Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, o.Prefix), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) stream(userID int64) string {
	return fmt.Sprintf("%ssamples:%d", s.prefix, userID)
}

// AppendSamples adds one stream entry per sample inside a MULTI/EXEC block.
// The id of the first entry is returned as the reference.
func (s *Store) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	key := s.stream(userID)
	rec := recordedAt.UTC().Format(time.RFC3339Nano)

	cmds, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, smp := range samples {
			p.XAdd(ctx, &redis.XAddArgs{
				Stream: key,
				Values: []any{
					"timestamp", smp.Timestamp.UTC().Format(time.RFC3339Nano),
					"x", formatFloat(smp.Pitch),
					"y", formatFloat(smp.Yaw),
					"z", formatFloat(smp.Roll),
					"recorded_at", rec,
				},
			})
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", key, err)
	}
	if len(cmds) == 0 {
		return "", nil
	}
	first, ok := cmds[0].(*redis.StringCmd)
	if !ok {
		return "", fmt.Errorf("xadd %s: unexpected reply %T", key, cmds[0])
	}
	return key + "/" + first.Val(), nil
}

// ListSamples reads the whole stream of a user.
func (s *Store) ListSamples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	key := s.stream(userID)
	msgs, err := s.rdb.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", key, err)
	}

	out := make([]domain.StoredSample, 0, len(msgs))
	for _, m := range msgs {
		smp, err := parseEntry(m.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", m.ID, err)
		}
		out = append(out, smp)
	}
	return out, nil
}

func parseEntry(v map[string]any) (domain.StoredSample, error) {
	field := func(name string) (string, error) {
		s, ok := v[name].(string)
		if !ok {
			return "", fmt.Errorf("missing field %q", name)
		}
		return s, nil
	}
	parseTime := func(name string) (time.Time, error) {
		s, err := field(name)
		if err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	parseFloat := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}

	var out domain.StoredSample
	var err error
	if out.Timestamp, err = parseTime("timestamp"); err != nil {
		return out, err
	}
	if out.Pitch, err = parseFloat("x"); err != nil {
		return out, err
	}
	if out.Yaw, err = parseFloat("y"); err != nil {
		return out, err
	}
	if out.Roll, err = parseFloat("z"); err != nil {
		return out, err
	}
	if out.RecordedAt, err = parseTime("recorded_at"); err != nil {
		return out, err
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
