package deletionworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/chunkstore/memorybackend"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	mimemory "github.com/vitality-ai/warpdrive/internal/metadataindex/memorybackend"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

func TestDefaults(t *testing.T) {
	w := New(memorybackend.New(), mimemory.New())
	assert.Equal(t, DefaultBatchSize, w.batchSize)
	assert.Equal(t, DefaultInterval, w.interval)
	assert.Equal(t, DefaultRetention, w.retention)
}

func TestSweep_ReleasesQueuedRanges(t *testing.T) {
	ctx := context.Background()
	cs := memorybackend.New()
	mi := mimemory.New()
	tc := tenant.New("alice", "bucket1", nil)

	r, err := cs.Write(ctx, tc, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, mi.QueueDeletion(ctx, tc, []chunkstore.Range{r}))

	w := New(cs, mi, WithBatchSize(10))
	w.sweep(ctx)

	pending, err := mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweep_GCsOldProcessedTasks(t *testing.T) {
	ctx := context.Background()
	cs := memorybackend.New()
	mi := mimemory.New()
	tc := tenant.New("alice", "bucket1", nil)

	r, err := cs.Write(ctx, tc, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, mi.QueueDeletion(ctx, tc, []chunkstore.Range{r}))
	queued, err := mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	w := New(cs, mi, WithRetention(0))
	w.sweep(ctx)
	w.sweep(ctx)

	// With zero retention the sweep removes the task it just processed, so
	// the index no longer knows its id.
	assert.ErrorIs(t, mi.MarkProcessed(ctx, queued[0].ID), metadataindex.ErrNotFound)
	require.NoError(t, mi.GCProcessed(ctx, time.Now().Add(time.Hour)))
}
