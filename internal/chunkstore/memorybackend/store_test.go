package memorybackend

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

func testTenant() tenant.Context {
	return tenant.New("alice", "bucket1", nil)
}

func TestStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	tc := testTenant()
	r, err := s.Write(ctx, tc, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Offset)
	assert.Equal(t, int64(11), r.Size)

	got, err := s.Read(ctx, tc, []chunkstore.Range{r})
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestStore_AppendsGrowTheLog(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	tc := testTenant()
	r1, err := s.Write(ctx, tc, []byte("abc"))
	require.NoError(t, err)
	r2, err := s.Write(ctx, tc, []byte("defgh"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), r1.Offset)
	assert.Equal(t, int64(3), r2.Offset)

	got, err := s.Read(ctx, tc, []chunkstore.Range{r1, r2})
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(got))
}

func TestStore_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	a := tenant.New("alice", "bucket1", nil)
	b := tenant.New("bob", "bucket1", nil)

	ra, err := s.Write(ctx, a, []byte("alice-data"))
	require.NoError(t, err)
	_, err = s.Write(ctx, b, []byte("bob-data"))
	require.NoError(t, err)

	got, err := s.Read(ctx, a, []chunkstore.Range{ra})
	require.NoError(t, err)
	assert.Equal(t, "alice-data", string(got))
}

func TestStore_ReadOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	tc := testTenant()
	_, err := s.Read(ctx, tc, []chunkstore.Range{{Offset: 0, Size: 10}})
	assert.ErrorIs(t, err, chunkstore.ErrNotFound)
}

func TestStore_Verify(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	tc := testTenant()
	r, err := s.Write(ctx, tc, []byte("payload"))
	require.NoError(t, err)

	ok, err := s.Verify(ctx, tc, []chunkstore.Range{r}, sha256.Sum256([]byte("payload")))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify(ctx, tc, []chunkstore.Range{r}, sha256.Sum256([]byte("wrong")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	tc := testTenant()
	r, err := s.Write(ctx, tc, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tc, []chunkstore.Range{r}))
	require.NoError(t, s.Delete(ctx, tc, []chunkstore.Range{r}))
}

func TestStore_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	tc := testTenant()
	_, err := s.Write(ctx, tc, []byte("x"))
	assert.ErrorIs(t, err, chunkstore.ErrClosed)
}
