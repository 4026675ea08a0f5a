package memorybackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

func testTenant() tenant.Context {
	return tenant.New("alice", "bucket1", nil)
}

func TestIndex_PutThenGet(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()
	ranges := []chunkstore.Range{{Offset: 0, Size: 10}}

	require.NoError(t, idx.Put(ctx, tc, "obj1", ranges))

	rec, err := idx.Get(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.Equal(t, ranges, rec.Ranges)
}

func TestIndex_GetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	idx := New()
	_, err := idx.Get(ctx, testTenant(), "missing")
	assert.ErrorIs(t, err, metadataindex.ErrNotFound)
}

func TestIndex_UpdateQueuesOldRanges(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	old := []chunkstore.Range{{Offset: 0, Size: 10}}
	require.NoError(t, idx.Put(ctx, tc, "obj1", old))

	fresh := []chunkstore.Range{{Offset: 10, Size: 5}}
	require.NoError(t, idx.Update(ctx, tc, "obj1", fresh))

	rec, err := idx.Get(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.Equal(t, fresh, rec.Ranges)

	pending, err := idx.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, old, pending[0].Ranges)
}

func TestIndex_DeleteAbsentKeyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	idx := New()
	assert.NoError(t, idx.Delete(ctx, testTenant(), "missing"))
}

func TestIndex_DeleteQueuesRanges(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	ranges := []chunkstore.Range{{Offset: 0, Size: 10}}
	require.NoError(t, idx.Put(ctx, tc, "obj1", ranges))
	require.NoError(t, idx.Delete(ctx, tc, "obj1"))

	exists, err := idx.Exists(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.False(t, exists)

	pending, err := idx.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ranges, pending[0].Ranges)
}

func TestIndex_RenameMovesManifest(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	ranges := []chunkstore.Range{{Offset: 0, Size: 10}}
	require.NoError(t, idx.Put(ctx, tc, "old", ranges))
	require.NoError(t, idx.Rename(ctx, tc, "old", "new"))

	_, err := idx.Get(ctx, tc, "old")
	assert.ErrorIs(t, err, metadataindex.ErrNotFound)

	rec, err := idx.Get(ctx, tc, "new")
	require.NoError(t, err)
	assert.Equal(t, ranges, rec.Ranges)
}

func TestIndex_RenameOntoExistingQueuesDestinationRanges(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	require.NoError(t, idx.Put(ctx, tc, "old", []chunkstore.Range{{Offset: 0, Size: 10}}))
	destRanges := []chunkstore.Range{{Offset: 100, Size: 20}}
	require.NoError(t, idx.Put(ctx, tc, "new", destRanges))

	require.NoError(t, idx.Rename(ctx, tc, "old", "new"))

	pending, err := idx.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, destRanges, pending[0].Ranges)
}

func TestIndex_ListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	require.NoError(t, idx.Put(ctx, tc, "reports/a", nil))
	require.NoError(t, idx.Put(ctx, tc, "reports/b", nil))
	require.NoError(t, idx.Put(ctx, tc, "images/c", nil))

	keys, err := idx.List(ctx, tc, "reports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/a", "reports/b"}, keys)
}

func TestIndex_MarkProcessedThenGC(t *testing.T) {
	ctx := context.Background()
	idx := New()
	tc := testTenant()

	require.NoError(t, idx.QueueDeletion(ctx, tc, []chunkstore.Range{{Offset: 0, Size: 1}}))
	pending, err := idx.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, idx.MarkProcessed(ctx, pending[0].ID))

	stillPending, err := idx.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stillPending)

	require.NoError(t, idx.GCProcessed(ctx, time.Now().Add(time.Hour)))
	require.Empty(t, idx.deletions)
}
