// Package fsbackend is a filesystem-backed chunkstore.Store. Each tenant's
// log is one append-only file under BasePath; writes are serialized per
// tenant and use an O_APPEND file descriptor so concurrent appenders never
// tear each other's writes.
package fsbackend

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/logger"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Config configures the filesystem backend.
type Config struct {
	// BasePath is the directory tenant log files are stored under.
	BasePath string
}

// DefaultConfig returns a Config rooted at "./storage".
func DefaultConfig() Config {
	return Config{BasePath: "storage"}
}

type tenantLog struct {
	mu   sync.Mutex
	file *os.File
}

// Store is a filesystem chunkstore.Store.
type Store struct {
	cfg Config

	mu     sync.Mutex
	logs   map[string]*tenantLog
	closed bool
}

// New creates a Store rooted at cfg.BasePath, creating the directory if
// it doesn't exist.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("fsbackend: create base path: %w", err)
	}
	return &Store{cfg: cfg, logs: make(map[string]*tenantLog)}, nil
}

// BasePath returns the directory the store is rooted at.
func (s *Store) BasePath() string {
	return s.cfg.BasePath
}

func (s *Store) logPath(t tenant.Context) string {
	return filepath.Join(s.cfg.BasePath, t.UserID, t.Bucket+".bin")
}

func (s *Store) logFor(t tenant.Context) (*tenantLog, error) {
	key := t.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.logs[key]; ok {
		return l, nil
	}

	path := s.logPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fsbackend: create tenant dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fsbackend: open tenant log: %w", err)
	}

	l := &tenantLog{file: f}
	s.logs[key] = l
	return l, nil
}

// Write appends data to the tenant's log file.
func (s *Store) Write(ctx context.Context, t tenant.Context, data []byte) (chunkstore.Range, error) {
	if s.isClosed() {
		return chunkstore.Range{}, chunkstore.ErrClosed
	}

	l, err := s.logFor(t)
	if err != nil {
		return chunkstore.Range{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return chunkstore.Range{}, fmt.Errorf("fsbackend: stat tenant log: %w", err)
	}
	offset := info.Size()

	n, err := l.file.Write(data)
	if err != nil {
		return chunkstore.Range{}, fmt.Errorf("fsbackend: write tenant log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		logger.Warn("fsbackend: sync failed", "user_id", t.UserID, "bucket", t.Bucket, "error", err)
	}

	return chunkstore.Range{Offset: offset, Size: int64(n)}, nil
}

// Read returns the concatenated bytes covered by ranges.
func (s *Store) Read(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) ([]byte, error) {
	if s.isClosed() {
		return nil, chunkstore.ErrClosed
	}

	l, err := s.logFor(t)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("fsbackend: stat tenant log: %w", err)
	}

	out := make([]byte, 0, chunkstore.TotalSize(ranges))
	for _, r := range ranges {
		if r.Offset < 0 || r.Offset+r.Size > info.Size() {
			return nil, chunkstore.ErrNotFound
		}
		buf := make([]byte, r.Size)
		if _, err := l.file.ReadAt(buf, r.Offset); err != nil {
			return nil, fmt.Errorf("fsbackend: read range: %w", err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// Delete is a no-op at the filesystem layer: the reference backend never
// shrinks a tenant's log file, it only stops serving released ranges
// through reads that aren't issued anymore. Space reclamation is left to
// a future offline compaction pass.
func (s *Store) Delete(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) error {
	if s.isClosed() {
		return chunkstore.ErrClosed
	}
	_, err := s.logFor(t)
	return err
}

// Verify recomputes a sha256 digest over ranges read back from disk and
// reports whether it matches checksum.
func (s *Store) Verify(ctx context.Context, t tenant.Context, ranges []chunkstore.Range, checksum [32]byte) (bool, error) {
	if s.isClosed() {
		return false, chunkstore.ErrClosed
	}

	l, err := s.logFor(t)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("fsbackend: stat tenant log: %w", err)
	}

	h := sha256.New()
	for _, r := range ranges {
		if r.Offset < 0 || r.Offset+r.Size > info.Size() {
			return false, chunkstore.ErrNotFound
		}
		buf := make([]byte, r.Size)
		if _, err := l.file.ReadAt(buf, r.Offset); err != nil {
			return false, fmt.Errorf("fsbackend: read range: %w", err)
		}
		h.Write(buf)
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	return got == checksum, nil
}

// Close closes every open tenant log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var firstErr error
	for _, l := range s.logs {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.logs = nil
	return firstErr
}

// HealthCheck confirms BasePath is still accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return chunkstore.ErrClosed
	}
	if _, err := os.Stat(s.cfg.BasePath); err != nil {
		return fmt.Errorf("fsbackend: base path unavailable: %w", err)
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ chunkstore.Store = (*Store)(nil)
