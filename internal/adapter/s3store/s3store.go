// Package s3store keeps orientation samples as JSON-lines objects in an
// S3-compatible bucket, one object per recorded batch.
package s3store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"liveauth/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Client is the subset of the S3 API the store uses.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config describes how to reach the bucket.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewClient builds an S3 client. Static credentials and a custom endpoint
// are used when set, which is how MinIO is reached.
func NewClient(ctx context.Context, c Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Store implements domain.SampleStore on a bucket.
type Store struct {
	client Client
	bucket string
	prefix string
}

var _ domain.SampleStore = (*Store)(nil)

// New creates a store writing below prefix in bucket.
func New(client Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) userPrefix(userID int64) string {
	return fmt.Sprintf("%susers/%d/", s.prefix, userID)
}

// key sorts chronologically: the recorded time is zero padded nanoseconds.
func (s *Store) key(userID int64, recordedAt time.Time) string {
	return fmt.Sprintf("%s%020d-%s.jsonl", s.userPrefix(userID), recordedAt.UnixNano(), uuid.New())
}

// AppendSamples uploads the batch as a new object and returns its key.
func (s *Store) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, smp := range samples {
		if err := enc.Encode(domain.StoredSample{OrientationSample: smp, RecordedAt: recordedAt.UTC()}); err != nil {
			return "", err
		}
	}

	key := s.key(userID, recordedAt)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// ListSamples downloads every batch of a user in chronological order.
func (s *Store) ListSamples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.userPrefix(userID)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)

	var out []domain.StoredSample
	for _, key := range keys {
		batch, err := s.readBatch(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Store) readBatch(ctx context.Context, key string) ([]domain.StoredSample, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Body.Close()

	var out []domain.StoredSample
	sc := bufio.NewScanner(obj.Body)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var smp domain.StoredSample
		if err := json.Unmarshal(sc.Bytes(), &smp); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, smp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}
