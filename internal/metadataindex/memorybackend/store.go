// Package memorybackend is an in-memory metadataindex.Index, used in tests
// and as a reference implementation of the index's transactional ordering.
package memorybackend

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Index is an in-memory metadataindex.Index.
type Index struct {
	mu        sync.Mutex
	records   map[string]map[string]metadataindex.Record
	deletions []metadataindex.DeletionTask
	nextID    int64
	closed    bool
}

// New creates an empty in-memory Index.
func New() *Index {
	return &Index{records: make(map[string]map[string]metadataindex.Record)}
}

func (i *Index) bucketFor(t tenant.Context) map[string]metadataindex.Record {
	key := t.Key()
	b, ok := i.records[key]
	if !ok {
		b = make(map[string]metadataindex.Record)
		i.records[key] = b
	}
	return b
}

func (i *Index) queueLocked(t tenant.Context, ranges []chunkstore.Range) {
	if len(ranges) == 0 {
		return
	}
	i.nextID++
	i.deletions = append(i.deletions, metadataindex.DeletionTask{
		ID:       i.nextID,
		UserID:   t.UserID,
		Bucket:   t.Bucket,
		Ranges:   ranges,
		QueuedAt: time.Now(),
	})
}

// Put creates or overwrites key's manifest without queuing old ranges.
func (i *Index) Put(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return metadataindex.ErrNotFound
	}

	now := time.Now()
	b := i.bucketFor(t)
	existing, ok := b[key]
	rec := metadataindex.Record{Key: key, Ranges: ranges, UpdatedAt: now}
	if ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	b[key] = rec
	return nil
}

// Get returns key's manifest.
func (i *Index) Get(ctx context.Context, t tenant.Context, key string) (metadataindex.Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.bucketFor(t)[key]
	if !ok {
		return metadataindex.Record{}, metadataindex.ErrNotFound
	}
	return rec, nil
}

// Update overwrites key's manifest, queuing the old ranges if key existed.
func (i *Index) Update(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	b := i.bucketFor(t)
	existing, ok := b[key]

	rec := metadataindex.Record{Key: key, Ranges: ranges, UpdatedAt: now}
	if ok {
		rec.CreatedAt = existing.CreatedAt
		i.queueLocked(t, existing.Ranges)
	} else {
		rec.CreatedAt = now
	}
	b[key] = rec
	return nil
}

// Delete removes key's manifest, queuing its ranges. An absent key is not
// an error.
func (i *Index) Delete(ctx context.Context, t tenant.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	b := i.bucketFor(t)
	existing, ok := b[key]
	if !ok {
		return nil
	}
	i.queueLocked(t, existing.Ranges)
	delete(b, key)
	return nil
}

// Rename moves oldKey's manifest to newKey, queuing newKey's old ranges
// if it already had a manifest.
func (i *Index) Rename(ctx context.Context, t tenant.Context, oldKey, newKey string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	b := i.bucketFor(t)
	rec, ok := b[oldKey]
	if !ok {
		return metadataindex.ErrNotFound
	}

	if existing, ok := b[newKey]; ok {
		i.queueLocked(t, existing.Ranges)
	}

	delete(b, oldKey)
	rec.Key = newKey
	rec.UpdatedAt = time.Now()
	b[newKey] = rec
	return nil
}

// Exists reports whether key has a manifest.
func (i *Index) Exists(ctx context.Context, t tenant.Context, key string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, ok := i.bucketFor(t)[key]
	return ok, nil
}

// List returns keys in the tenant's bucket with the given prefix.
func (i *Index) List(ctx context.Context, t tenant.Context, prefix string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var keys []string
	for k := range i.bucketFor(t) {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// QueueDeletion enqueues ranges for later reclamation.
func (i *Index) QueueDeletion(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.queueLocked(t, ranges)
	return nil
}

// PendingDeletions returns up to limit unprocessed tasks, oldest first.
func (i *Index) PendingDeletions(ctx context.Context, limit int) ([]metadataindex.DeletionTask, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []metadataindex.DeletionTask
	for _, d := range i.deletions {
		if d.Processed {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// PendingDeletionCount returns the total number of unprocessed tasks.
func (i *Index) PendingDeletionCount(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for _, d := range i.deletions {
		if !d.Processed {
			n++
		}
	}
	return n, nil
}

// MarkProcessed marks a deletion task as processed.
func (i *Index) MarkProcessed(ctx context.Context, id int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for idx, d := range i.deletions {
		if d.ID == id {
			i.deletions[idx].Processed = true
			return nil
		}
	}
	return metadataindex.ErrNotFound
}

// GCProcessed removes processed tasks queued before cutoff.
func (i *Index) GCProcessed(ctx context.Context, cutoff time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	kept := i.deletions[:0]
	for _, d := range i.deletions {
		if d.Processed && d.QueuedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, d)
	}
	i.deletions = kept
	return nil
}

// Close marks the index closed.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// HealthCheck reports whether the index is open.
func (i *Index) HealthCheck(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return metadataindex.ErrNotFound
	}
	return nil
}

var _ metadataindex.Index = (*Index)(nil)
