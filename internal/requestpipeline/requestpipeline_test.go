package requestpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/assembler"
	"github.com/vitality-ai/warpdrive/internal/chunkstore/memorybackend"
	mimemory "github.com/vitality-ai/warpdrive/internal/metadataindex/memorybackend"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

func newTestPipeline() *Pipeline {
	return New(memorybackend.New(), mimemory.New())
}

func testTenant() tenant.Context {
	return tenant.New("alice", "bucket1", nil)
}

// framed encodes parts as a native request body, one sub-blob per part.
func framed(t *testing.T, parts ...string) []byte {
	t.Helper()
	blobs := make([][]byte, len(parts))
	for i, p := range parts {
		blobs[i] = []byte(p)
	}
	body, err := assembler.Encode(assembler.Framed, blobs)
	require.NoError(t, err)
	return body
}

func TestPut_RejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "obj1", framed(t, "hello")))
	err := p.Put(ctx, tc, "obj1", []byte("world"))
	assert.ErrorIs(t, err, apierr.ErrAlreadyExists)
}

func TestPut_RejectsEmptyPayload(t *testing.T) {
	p := newTestPipeline()
	err := p.Put(context.Background(), testTenant(), "obj1", nil)
	assert.ErrorIs(t, err, apierr.ErrBadRequest)
}

func TestPutThenGet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "obj1", framed(t, "hello world")))

	got, err := p.Get(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestGet_MissingKeyReturnsNotFound(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Get(context.Background(), testTenant(), "missing")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestAppend_ExtendsPayloadWithoutQueuingOldRanges(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "log", framed(t, "first ")))
	require.NoError(t, p.Append(ctx, tc, "log", framed(t, "second")))

	got, err := p.Get(ctx, tc, "log")
	require.NoError(t, err)
	assert.Equal(t, "first second", string(got))

	pending, err := p.mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "append must not queue the ranges it still references")
}

func TestAppend_MissingKeyReturnsNotFound(t *testing.T) {
	p := newTestPipeline()
	err := p.Append(context.Background(), testTenant(), "missing", []byte("x"))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestUpdate_ReplacesPayloadWithoutQueuingOldRanges(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "obj1", framed(t, "original")))
	require.NoError(t, p.Update(ctx, tc, "obj1", framed(t, "replacement")))

	got, err := p.Get(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.Equal(t, "replacement", string(got))

	pending, err := p.mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "native update must not enqueue the old ranges")
}

func TestDelete_MissingKeyReturnsNotFound(t *testing.T) {
	p := newTestPipeline()
	err := p.Delete(context.Background(), testTenant(), "missing")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestDelete_RemovesKeyAndQueuesRanges(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "obj1", framed(t, "bytes")))
	require.NoError(t, p.Delete(ctx, tc, "obj1"))

	_, err := p.Get(ctx, tc, "obj1")
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	pending, err := p.mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRenameKey_MovesManifest(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "old", framed(t, "payload")))
	require.NoError(t, p.RenameKey(ctx, tc, "old", "new"))

	_, err := p.Get(ctx, tc, "old")
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	got, err := p.Get(ctx, tc, "new")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestListKeys_FiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	require.NoError(t, p.Put(ctx, tc, "reports/a", framed(t, "a")))
	require.NoError(t, p.Put(ctx, tc, "reports/b", framed(t, "b")))
	require.NoError(t, p.Put(ctx, tc, "images/c", framed(t, "c")))

	keys, err := p.ListKeys(ctx, tc, "reports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/a", "reports/b"}, keys)
}

func TestPutS3Object_OverwriteQueuesOldRanges(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	_, err := p.PutS3Object(ctx, tc, "obj1", []byte("v1"))
	require.NoError(t, err)
	etag, err := p.PutS3Object(ctx, tc, "obj1", []byte("v2"))
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	got, err := p.GetS3Object(ctx, tc, "obj1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	pending, err := p.mi.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "S3 overwrite queues the old bytes for reclamation")
}

func TestPutS3Object_EmptyObjectAllowed(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	etag, err := p.PutS3Object(ctx, tc, "empty", []byte{})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	got, err := p.GetS3Object(ctx, tc, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHeadS3Object_NeverErrorsOnMissingKey(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	info := p.HeadS3Object(ctx, tc, "missing")
	assert.False(t, info.Exists)
	assert.Equal(t, int64(0), info.Size)

	_, err := p.PutS3Object(ctx, tc, "obj1", []byte("abcde"))
	require.NoError(t, err)
	info = p.HeadS3Object(ctx, tc, "obj1")
	assert.True(t, info.Exists)
	assert.Equal(t, int64(5), info.Size)
}

func TestListS3Objects_ReturnsSizes(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	tc := testTenant()

	_, err := p.PutS3Object(ctx, tc, "a", []byte("123"))
	require.NoError(t, err)
	_, err = p.PutS3Object(ctx, tc, "b", []byte("12345"))
	require.NoError(t, err)

	infos, err := p.ListS3Objects(ctx, tc, "")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Key)
	assert.Equal(t, int64(3), infos[0].Size)
	assert.Equal(t, "b", infos[1].Key)
	assert.Equal(t, int64(5), infos[1].Size)
}

func TestCopyS3Object_CopiesAcrossTenants(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline()
	src := tenant.New("alice", "bucket1", nil)
	dst := tenant.New("alice", "bucket2", nil)

	_, err := p.PutS3Object(ctx, src, "obj1", []byte("copy me"))
	require.NoError(t, err)

	_, err = p.CopyS3Object(ctx, dst, src, "obj1", "obj1-copy")
	require.NoError(t, err)

	got, err := p.GetS3Object(ctx, dst, "obj1-copy")
	require.NoError(t, err)
	assert.Equal(t, "copy me", string(got))
}

func TestDeleteS3Object_MissingKeyReturnsNotFound(t *testing.T) {
	p := newTestPipeline()
	err := p.DeleteS3Object(context.Background(), testTenant(), "missing")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}
