// Package requestpipeline orchestrates the chunk store, metadata index,
// and object assembler into the put/get/append/update/delete/rename/list
// operations the native and S3 HTTP surfaces expose. It never touches
// net/http directly; the httpapi package maps these calls onto requests
// and responses.
package requestpipeline

import (
	"context"
	"crypto/md5" //nolint:gosec // used only as a content digest for ETags, not for security
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/assembler"
	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	"github.com/vitality-ai/warpdrive/internal/metrics"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Pipeline wires one chunkstore.Store and one metadataindex.Index into the
// operations the HTTP layer calls.
type Pipeline struct {
	cs      chunkstore.Store
	mi      metadataindex.Index
	metrics *metrics.Registry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches a metrics.Registry the pipeline reports operation
// counts and chunk store latencies to.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a Pipeline over cs and mi.
func New(cs chunkstore.Store, mi metadataindex.Index, opts ...Option) *Pipeline {
	p := &Pipeline{cs: cs, mi: mi}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// observe returns a function that, called with the operation's final error,
// records its outcome and latency. Call via defer: defer p.observe("native",
// "put")(&err).
func (p *Pipeline) observe(surface, operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		p.metrics.ObserveOperation(surface, operation, time.Since(start), err)
	}
}

// csWrite wraps chunkstore.Store.Write with a latency observation.
func (p *Pipeline) csWrite(ctx context.Context, t tenant.Context, data []byte) (chunkstore.Range, error) {
	start := time.Now()
	r, err := p.cs.Write(ctx, t, data)
	p.metrics.ObserveChunkStoreWrite(time.Since(start))
	return r, err
}

// csRead wraps chunkstore.Store.Read with a latency observation.
func (p *Pipeline) csRead(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) ([]byte, error) {
	start := time.Now()
	data, err := p.cs.Read(ctx, t, ranges)
	p.metrics.ObserveChunkStoreRead(time.Since(start))
	return data, err
}

func translateIndexErr(err error) error {
	if errors.Is(err, metadataindex.ErrNotFound) {
		return apierr.Wrap(apierr.ErrNotFound, err.Error())
	}
	return err
}

// writeFramedObject decodes a framed native request body into its
// constituent sub-blobs (one per file in the caller's FileDataList) and
// issues one chunk store write per sub-blob, in order, each re-wrapped as
// its own single-part frame so readFramedObject can decode it back
// symmetrically. Returns the ordered manifest of ranges, one per sub-blob.
func (p *Pipeline) writeFramedObject(ctx context.Context, t tenant.Context, data []byte) ([]chunkstore.Range, error) {
	parts, err := assembler.Decode(assembler.Framed, data)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrBadRequest, "malformed framed payload: "+err.Error())
	}

	ranges := make([]chunkstore.Range, 0, len(parts))
	for _, part := range parts {
		frame, err := assembler.Encode(assembler.Framed, [][]byte{part})
		if err != nil {
			return nil, err
		}
		r, err := p.csWrite(ctx, t, frame)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// readFramedObject reads every range in rec, decoding each as its own
// frame and concatenating the sub-blobs across ranges in order.
func (p *Pipeline) readFramedObject(ctx context.Context, t tenant.Context, rec metadataindex.Record) ([]byte, error) {
	frames := make([][][]byte, 0, len(rec.Ranges))
	for _, r := range rec.Ranges {
		raw, err := p.csRead(ctx, t, []chunkstore.Range{r})
		if err != nil {
			return nil, fmt.Errorf("requestpipeline: read range: %w", err)
		}
		parts, err := assembler.Decode(assembler.Framed, raw)
		if err != nil {
			return nil, fmt.Errorf("requestpipeline: decode frame: %w", err)
		}
		frames = append(frames, parts)
	}
	return assembler.Concat(frames), nil
}

// Put creates a new native object. Returns apierr.ErrAlreadyExists if key
// already has a manifest, apierr.ErrBadRequest if data is empty.
func (p *Pipeline) Put(ctx context.Context, t tenant.Context, key string, data []byte) (err error) {
	defer p.observe("native", "put")(&err)

	if len(data) == 0 {
		return apierr.Wrap(apierr.ErrBadRequest, "no data was uploaded")
	}

	exists, err := p.mi.Exists(ctx, t, key)
	if err != nil {
		return err
	}
	if exists {
		return apierr.Wrap(apierr.ErrAlreadyExists, "key already exists")
	}

	ranges, err := p.writeFramedObject(ctx, t, data)
	if err != nil {
		return err
	}

	return p.mi.Put(ctx, t, key, ranges)
}

// Get returns a native object's full payload.
func (p *Pipeline) Get(ctx context.Context, t tenant.Context, key string) (_ []byte, err error) {
	defer p.observe("native", "get")(&err)

	rec, err := p.mi.Get(ctx, t, key)
	if err != nil {
		return nil, translateIndexErr(err)
	}
	return p.readFramedObject(ctx, t, rec)
}

// Append decodes the framed data, writes one frame per sub-blob, and
// extends key's manifest with the new ranges. The existing ranges are kept as-is (not queued for
// deletion), since they remain part of the object's content.
func (p *Pipeline) Append(ctx context.Context, t tenant.Context, key string, data []byte) (err error) {
	defer p.observe("native", "append")(&err)

	rec, err := p.mi.Get(ctx, t, key)
	if err != nil {
		return translateIndexErr(err)
	}

	ranges, err := p.writeFramedObject(ctx, t, data)
	if err != nil {
		return err
	}

	newRanges := append(append([]chunkstore.Range{}, rec.Ranges...), ranges...)
	return p.mi.Put(ctx, t, key, newRanges)
}

// Update replaces key's entire payload with data. Matching the reference
// implementation, the old ranges are not queued for deletion — update is
// a pure metadata swap, and reclaiming orphaned ranges is left to a
// future compaction pass.
func (p *Pipeline) Update(ctx context.Context, t tenant.Context, key string, data []byte) (err error) {
	defer p.observe("native", "update")(&err)

	if len(data) == 0 {
		return apierr.Wrap(apierr.ErrBadRequest, "no data was uploaded")
	}

	ranges, err := p.writeFramedObject(ctx, t, data)
	if err != nil {
		return err
	}

	return p.mi.Put(ctx, t, key, ranges)
}

// Delete removes a native object. Returns apierr.ErrNotFound if key has
// no manifest, checked up front so the deletion-queue's own idempotent
// delete-on-absent-key semantics don't leak a 2xx to a caller deleting
// something that was never there.
func (p *Pipeline) Delete(ctx context.Context, t tenant.Context, key string) (err error) {
	defer p.observe("native", "delete")(&err)

	exists, err := p.mi.Exists(ctx, t, key)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.Wrap(apierr.ErrNotFound, "no data found for key")
	}
	return p.mi.Delete(ctx, t, key)
}

// RenameKey moves oldKey's manifest to newKey.
func (p *Pipeline) RenameKey(ctx context.Context, t tenant.Context, oldKey, newKey string) (err error) {
	defer p.observe("native", "rename")(&err)

	exists, err := p.mi.Exists(ctx, t, oldKey)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.Wrap(apierr.ErrNotFound, "no data found for key")
	}
	return p.mi.Rename(ctx, t, oldKey, newKey)
}

// ListKeys lists native object keys under prefix.
func (p *Pipeline) ListKeys(ctx context.Context, t tenant.Context, prefix string) (_ []string, err error) {
	defer p.observe("native", "list")(&err)
	return p.mi.List(ctx, t, prefix)
}

// --- S3 surface -----------------------------------------------------------

// ObjectInfo is the size/presence summary S3 HEAD/GET/LIST need without
// reading the full payload.
type ObjectInfo struct {
	Key    string
	Size   int64
	Exists bool
}

// PutS3Object stores data as a single opaque blob at key, overwriting any
// existing object and queuing its old ranges for deletion.
func (p *Pipeline) PutS3Object(ctx context.Context, t tenant.Context, key string, data []byte) (etag string, err error) {
	defer p.observe("s3", "put")(&err)

	// Empty objects are allowed through S3 PUT (spec boundary behavior): a
	// subsequent GET returns 0 bytes, matching the chunk store's own
	// support for zero-length writes.
	blob, err := assembler.Encode(assembler.Opaque, [][]byte{data})
	if err != nil {
		return "", err
	}
	r, err := p.csWrite(ctx, t, blob)
	if err != nil {
		return "", err
	}
	if err := p.mi.Update(ctx, t, key, []chunkstore.Range{r}); err != nil {
		return "", err
	}

	return md5Hex(data), nil
}

// GetS3Object returns an S3 object's full payload.
func (p *Pipeline) GetS3Object(ctx context.Context, t tenant.Context, key string) (_ []byte, err error) {
	defer p.observe("s3", "get")(&err)

	rec, err := p.mi.Get(ctx, t, key)
	if err != nil {
		return nil, translateIndexErr(err)
	}
	raw, err := p.csRead(ctx, t, rec.Ranges)
	if err != nil {
		return nil, fmt.Errorf("requestpipeline: read object: %w", err)
	}
	parts, err := assembler.Decode(assembler.Opaque, raw)
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// DeleteS3Object removes an S3 object.
func (p *Pipeline) DeleteS3Object(ctx context.Context, t tenant.Context, key string) (err error) {
	defer p.observe("s3", "delete")(&err)

	exists, err := p.mi.Exists(ctx, t, key)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.Wrap(apierr.ErrNotFound, "no such key")
	}
	return p.mi.Delete(ctx, t, key)
}

// HeadS3Object always succeeds, matching the reference server: HEAD never
// checks existence. When a manifest does exist, its size is reported;
// otherwise a zero size is returned. It never returns an error, so it
// isn't wrapped with observe; there's no outcome to report beyond what
// the caller can already see in ObjectInfo.Exists.
func (p *Pipeline) HeadS3Object(ctx context.Context, t tenant.Context, key string) ObjectInfo {
	rec, err := p.mi.Get(ctx, t, key)
	if err != nil {
		return ObjectInfo{Key: key}
	}
	return ObjectInfo{Key: key, Size: chunkstore.TotalSize(rec.Ranges), Exists: true}
}

// ListS3Objects lists S3 objects under prefix with their sizes.
func (p *Pipeline) ListS3Objects(ctx context.Context, t tenant.Context, prefix string) (_ []ObjectInfo, err error) {
	defer p.observe("s3", "list")(&err)

	keys, err := p.mi.List(ctx, t, prefix)
	if err != nil {
		return nil, err
	}

	infos := make([]ObjectInfo, 0, len(keys))
	for _, k := range keys {
		if isSyntheticKey(k) {
			continue
		}
		rec, err := p.mi.Get(ctx, t, k)
		if err != nil {
			continue
		}
		infos = append(infos, ObjectInfo{Key: k, Size: chunkstore.TotalSize(rec.Ranges), Exists: true})
	}
	return infos, nil
}

// CopyS3Object copies an object from (srcTenant, srcKey) to (t, dstKey).
// The source tenant carries the copy-source bucket; the user is the same
// authenticated caller in both cases. Left uninstrumented at this level:
// it delegates to GetS3Object and PutS3Object, which already record their
// own "s3"/"get" and "s3"/"put" observations.
func (p *Pipeline) CopyS3Object(ctx context.Context, t, srcTenant tenant.Context, srcKey, dstKey string) (etag string, err error) {
	data, err := p.GetS3Object(ctx, srcTenant, srcKey)
	if err != nil {
		return "", err
	}
	return p.PutS3Object(ctx, t, dstKey, data)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
