// Package s3backend is an S3-backed chunkstore.Store. Each tenant's log
// maps to a single S3 object key; Write does a GET-modify-PUT append.
// Appends are serialized within one Store, but the append is not atomic
// across concurrent processes writing the same tenant — acceptable for the reference backend, where the deployment is
// expected to run one writer per tenant key or accept occasional
// last-writer-wins on concurrent appends to the same bucket.
package s3backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Config configures the S3 backend.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	KeyPrefix      string
	ForcePathStyle bool
}

// Store is an S3 chunkstore.Store.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	// writeMu serializes Write's GET-modify-PUT so concurrent appends
	// never read the same log length and overwrite each other.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// New wraps an already-constructed s3.Client.
func New(client *s3.Client, cfg Config) *Store {
	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}
}

// NewFromConfig builds an s3.Client from cfg using the default AWS
// credential chain and returns a Store wrapping it.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3backend: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg), nil
}

func (s *Store) objectKey(t tenant.Context) string {
	if s.keyPrefix == "" {
		return t.Key()
	}
	return s.keyPrefix + "/" + t.Key()
}

// Write fetches the tenant's current log, appends data, and re-uploads it.
func (s *Store) Write(ctx context.Context, t tenant.Context, data []byte) (chunkstore.Range, error) {
	if s.isClosed() {
		return chunkstore.Range{}, chunkstore.ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := s.objectKey(t)
	existing, err := s.getObject(ctx, key)
	if err != nil && !errors.Is(err, chunkstore.ErrNotFound) {
		return chunkstore.Range{}, err
	}

	offset := int64(len(existing))
	combined := append(existing, data...)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(combined),
	})
	if err != nil {
		return chunkstore.Range{}, fmt.Errorf("s3backend: put object: %w", err)
	}

	return chunkstore.Range{Offset: offset, Size: int64(len(data))}, nil
}

// Read fetches the tenant's log object and slices out ranges.
func (s *Store) Read(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) ([]byte, error) {
	if s.isClosed() {
		return nil, chunkstore.ErrClosed
	}

	data, err := s.getObject(ctx, s.objectKey(t))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, chunkstore.TotalSize(ranges))
	for _, r := range ranges {
		end := r.Offset + r.Size
		if r.Offset < 0 || end > int64(len(data)) {
			return nil, chunkstore.ErrNotFound
		}
		out = append(out, data[r.Offset:end]...)
	}
	return out, nil
}

// Delete is a no-op: the reference S3 backend never shrinks the tenant
// object, matching the filesystem backend's compaction-deferred design.
func (s *Store) Delete(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) error {
	if s.isClosed() {
		return chunkstore.ErrClosed
	}
	return nil
}

// Verify recomputes a sha256 digest over ranges read from the current
// object and reports whether it matches checksum.
func (s *Store) Verify(ctx context.Context, t tenant.Context, ranges []chunkstore.Range, checksum [32]byte) (bool, error) {
	if s.isClosed() {
		return false, chunkstore.ErrClosed
	}

	data, err := s.getObject(ctx, s.objectKey(t))
	if err != nil {
		return false, err
	}

	h := sha256.New()
	for _, r := range ranges {
		end := r.Offset + r.Size
		if r.Offset < 0 || end > int64(len(data)) {
			return false, chunkstore.ErrNotFound
		}
		h.Write(data[r.Offset:end])
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	return got == checksum, nil
}

// Close marks the store closed. The underlying S3 client has no
// persistent connection to release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// HealthCheck confirms the configured bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return chunkstore.ErrClosed
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3backend: bucket unreachable: %w", err)
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, chunkstore.ErrNotFound
		}
		return nil, fmt.Errorf("s3backend: get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3backend: read object body: %w", err)
	}
	return data, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ chunkstore.Store = (*Store)(nil)
