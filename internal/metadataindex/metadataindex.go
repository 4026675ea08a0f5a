// Package metadataindex maps (user_id, bucket, key) to the chunk ranges
// that make up an object, and queues ranges for reclamation once an
// object is overwritten (including by a rename onto its key) or deleted.
package metadataindex

import (
	"context"
	"errors"
	"time"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Common errors returned by Index implementations.
var (
	ErrNotFound      = errors.New("metadataindex: key not found")
	ErrAlreadyExists = errors.New("metadataindex: key already exists")
)

// Record is the manifest stored for one (user_id, bucket, key).
type Record struct {
	Key       string
	Ranges    []chunkstore.Range
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeletionTask is a single write-ahead entry in the deletion queue: a set
// of ranges that must eventually be released from the chunk store.
type DeletionTask struct {
	ID        int64
	UserID    string
	Bucket    string
	Ranges    []chunkstore.Range
	QueuedAt  time.Time
	Processed bool
}

// Index is the metadata index's storage contract. Implementations must
// make Put followed by QueueDeletion (when replacing an existing key) and
// Delete followed by QueueDeletion atomic: a deletion task is never lost
// once its manifest row has been removed or overwritten.
type Index interface {
	// Put creates or overwrites the manifest for key. Callers that need
	// the old ranges queued for deletion must read them first (via Get)
	// and call QueueDeletion themselves, or use Update for that ordering.
	Put(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error

	// Get returns the manifest for key, or ErrNotFound.
	Get(ctx context.Context, t tenant.Context, key string) (Record, error)

	// Update overwrites key's manifest and, if a manifest existed already,
	// atomically queues its old ranges for deletion in the same
	// transaction as the overwrite.
	Update(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error

	// Delete removes key's manifest and atomically queues its ranges for
	// deletion. Deleting an absent key is not an error.
	Delete(ctx context.Context, t tenant.Context, key string) error

	// Rename moves a manifest from oldKey to newKey. If newKey already has
	// a manifest, its old ranges are atomically queued for deletion in the
	// same transaction as the rename.
	Rename(ctx context.Context, t tenant.Context, oldKey, newKey string) error

	// Exists reports whether key has a manifest.
	Exists(ctx context.Context, t tenant.Context, key string) (bool, error)

	// List returns every key in the tenant's bucket with the given
	// prefix, sorted lexically.
	List(ctx context.Context, t tenant.Context, prefix string) ([]string, error)

	// QueueDeletion enqueues ranges for later reclamation by the deletion
	// worker, outside the context of a Put/Update/Delete overwrite.
	QueueDeletion(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) error

	// PendingDeletions returns up to limit unprocessed deletion tasks,
	// oldest first.
	PendingDeletions(ctx context.Context, limit int) ([]DeletionTask, error)

	// PendingDeletionCount returns the total number of unprocessed
	// deletion tasks, unbounded by any batch limit. Used to report true
	// queue depth, independent of how many tasks a single sweep fetches.
	PendingDeletionCount(ctx context.Context) (int, error)

	// MarkProcessed marks a deletion task as processed so it is no longer
	// returned by PendingDeletions.
	MarkProcessed(ctx context.Context, id int64) error

	// GCProcessed permanently removes deletion tasks marked processed
	// before cutoff.
	GCProcessed(ctx context.Context, cutoff time.Time) error

	// Close releases any resources held by the index.
	Close() error

	// HealthCheck verifies the index is accessible and operational.
	HealthCheck(ctx context.Context) error
}
