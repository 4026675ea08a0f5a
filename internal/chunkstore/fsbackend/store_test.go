package fsbackend

import (
	"context"
	"crypto/sha256"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tc := tenant.New("alice", "bucket1", nil)

	r, err := s.Write(ctx, tc, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Offset)

	got, err := s.Read(ctx, tc, []chunkstore.Range{r})
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestStore_AppendsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tc := tenant.New("alice", "bucket1", nil)

	r1, err := s.Write(ctx, tc, []byte("abc"))
	require.NoError(t, err)
	r2, err := s.Write(ctx, tc, []byte("defgh"))
	require.NoError(t, err)

	assert.Equal(t, int64(3), r2.Offset)

	got, err := s.Read(ctx, tc, []chunkstore.Range{r1, r2})
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(got))
}

func TestStore_VerifyDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tc := tenant.New("alice", "bucket1", nil)

	r, err := s.Write(ctx, tc, []byte("payload"))
	require.NoError(t, err)
	checksum := sha256.Sum256([]byte("payload"))
	ok, err := s.Verify(ctx, tc, []chunkstore.Range{r}, checksum)
	require.NoError(t, err)
	assert.True(t, ok)

	// The store's own handle is O_APPEND, which rejects WriteAt, so corrupt
	// the log through a separate handle.
	f, err := os.OpenFile(s.logPath(tc), os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("X"), r.Offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ok, err = s.Verify(ctx, tc, []chunkstore.Range{r}, checksum)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ReadOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tc := tenant.New("alice", "bucket1", nil)

	_, err := s.Read(ctx, tc, []chunkstore.Range{{Offset: 0, Size: 10}})
	assert.ErrorIs(t, err, chunkstore.ErrNotFound)
}

func TestStore_HealthCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.NoError(t, s.HealthCheck(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.HealthCheck(ctx), chunkstore.ErrClosed)
}
