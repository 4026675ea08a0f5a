package requestpipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/assembler"
	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// UploadState tracks an in-progress multipart upload's lifecycle.
type UploadState string

const (
	UploadInitiated     UploadState = "INITIATED"
	UploadPartsUploaded UploadState = "PARTS_UPLOADED"
)

// partKeyPrefix returns the synthetic metadata key prefix for an upload's
// parts: "{key}.part." — each uploaded part is stored under
// "{key}.part.{partNumber}.{uploadId}".
func partKeyPrefix(key string) string {
	return key + ".part."
}

func partKey(key string, partNumber int, uploadID string) string {
	return fmt.Sprintf("%s.part.%d.%s", key, partNumber, uploadID)
}

func statusKey(key, uploadID string) string {
	return fmt.Sprintf("%s.multipart.%s.status", key, uploadID)
}

// isSyntheticKey reports whether key is bookkeeping metadata created by the
// multipart implementation (an in-flight part, or an upload's status
// record) rather than a real object a caller PUT. Listings filter these
// out so an in-flight upload doesn't surface phantom objects.
func isSyntheticKey(key string) bool {
	return strings.Contains(key, ".part.") || strings.Contains(key, ".multipart.")
}

// NewUploadID mints a timestamp-based multipart upload id, unique enough
// for the reference server's single-process deployment model.
func NewUploadID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// CreateMultipartUpload registers a new upload and returns its id.
func (p *Pipeline) CreateMultipartUpload(ctx context.Context, t tenant.Context, key string) (_ string, err error) {
	defer p.observe("multipart", "create")(&err)

	uploadID := NewUploadID()
	if err := p.setUploadState(ctx, t, key, uploadID, UploadInitiated); err != nil {
		return "", err
	}
	return uploadID, nil
}

// UploadPart stores one part's bytes under its synthetic metadata key.
func (p *Pipeline) UploadPart(ctx context.Context, t tenant.Context, key, uploadID string, partNumber int, data []byte) (etag string, err error) {
	defer p.observe("multipart", "upload_part")(&err)

	// getUploadState returns ErrNotFound once the status key has been
	// deleted by Complete/Abort, so a part arriving after either rejects
	// here the same way it would for an upload id that never existed.
	if _, err := p.getUploadState(ctx, t, key, uploadID); err != nil {
		return "", err
	}

	blob, err := assembler.Encode(assembler.Opaque, [][]byte{data})
	if err != nil {
		return "", err
	}
	r, err := p.csWrite(ctx, t, blob)
	if err != nil {
		return "", err
	}
	if err := p.mi.Put(ctx, t, partKey(key, partNumber, uploadID), []chunkstore.Range{r}); err != nil {
		return "", err
	}

	if err := p.setUploadState(ctx, t, key, uploadID, UploadPartsUploaded); err != nil {
		return "", err
	}
	return md5Hex(data), nil
}

// CompleteMultipartUpload concatenates every uploaded part in order, writes
// the result as the final object (overwriting any prior object at key, per
// PutS3Object semantics), and cleans up the synthetic part keys.
func (p *Pipeline) CompleteMultipartUpload(ctx context.Context, t tenant.Context, key, uploadID string) (etag string, err error) {
	defer p.observe("multipart", "complete")(&err)

	state, err := p.getUploadState(ctx, t, key, uploadID)
	if err != nil {
		return "", err
	}
	if state != UploadPartsUploaded {
		return "", apierr.Wrap(apierr.ErrConflict, "no parts uploaded for this upload id")
	}

	parts, err := p.orderedParts(ctx, t, key, uploadID)
	if err != nil {
		return "", err
	}

	var payload []byte
	for _, partK := range parts {
		data, err := p.GetS3Object(ctx, t, partK)
		if err != nil {
			return "", fmt.Errorf("requestpipeline: read part %q: %w", partK, err)
		}
		payload = append(payload, data...)
	}

	etag, err = p.PutS3Object(ctx, t, key, payload)
	if err != nil {
		return "", err
	}

	for _, partK := range parts {
		if err := p.mi.Delete(ctx, t, partK); err != nil {
			return "", fmt.Errorf("requestpipeline: cleanup part %q: %w", partK, err)
		}
	}
	if err := p.mi.Delete(ctx, t, statusKey(key, uploadID)); err != nil {
		return "", fmt.Errorf("requestpipeline: cleanup upload status: %w", err)
	}

	return etag, nil
}

// AbortMultipartUpload discards every uploaded part for uploadID.
func (p *Pipeline) AbortMultipartUpload(ctx context.Context, t tenant.Context, key, uploadID string) (err error) {
	defer p.observe("multipart", "abort")(&err)

	parts, err := p.orderedParts(ctx, t, key, uploadID)
	if err != nil {
		return err
	}
	for _, partK := range parts {
		if err := p.mi.Delete(ctx, t, partK); err != nil {
			return fmt.Errorf("requestpipeline: abort part %q: %w", partK, err)
		}
	}
	return p.mi.Delete(ctx, t, statusKey(key, uploadID))
}

// orderedParts lists every part key for uploadID, sorted by part number.
func (p *Pipeline) orderedParts(ctx context.Context, t tenant.Context, key, uploadID string) ([]string, error) {
	keys, err := p.mi.List(ctx, t, partKeyPrefix(key))
	if err != nil {
		return nil, err
	}

	suffix := "." + uploadID
	var matched []string
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			matched = append(matched, k)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return partNumberOf(matched[i], key, uploadID) < partNumberOf(matched[j], key, uploadID)
	})
	return matched, nil
}

// partNumberOf extracts the part number from a key produced by partKey.
// It looks for the suffix this upload's own uploadID adds rather than
// re-deriving the prefix from partK itself, so it stays correct even when
// the caller's object key contains literal "." or ".part." substrings.
func partNumberOf(partK, objectKey, uploadID string) int {
	prefix := partKeyPrefix(objectKey)
	suffix := "." + uploadID
	middle := strings.TrimSuffix(strings.TrimPrefix(partK, prefix), suffix)
	n, _ := strconv.Atoi(middle)
	return n
}

// setUploadState persists state as the status key's payload, stored
// through the chunk store like any other object so it survives and can
// be read back verbatim.
func (p *Pipeline) setUploadState(ctx context.Context, t tenant.Context, key, uploadID string, state UploadState) error {
	blob, err := assembler.Encode(assembler.Opaque, [][]byte{[]byte(state)})
	if err != nil {
		return err
	}
	r, err := p.csWrite(ctx, t, blob)
	if err != nil {
		return err
	}
	return p.mi.Put(ctx, t, statusKey(key, uploadID), []chunkstore.Range{r})
}

func (p *Pipeline) getUploadState(ctx context.Context, t tenant.Context, key, uploadID string) (UploadState, error) {
	rec, err := p.mi.Get(ctx, t, statusKey(key, uploadID))
	if err != nil {
		return "", apierr.Wrap(apierr.ErrNotFound, "no such upload id")
	}
	raw, err := p.csRead(ctx, t, rec.Ranges)
	if err != nil {
		return "", fmt.Errorf("requestpipeline: read upload state: %w", err)
	}
	parts, err := assembler.Decode(assembler.Opaque, raw)
	if err != nil {
		return "", err
	}
	return UploadState(parts[0]), nil
}
