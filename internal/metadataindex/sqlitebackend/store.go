// Package sqlitebackend is the production metadataindex.Index, backed by
// SQLite through GORM. Schema changes are applied via golang-migrate
// before the GORM handle is handed back to callers.
package sqlitebackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	"github.com/vitality-ai/warpdrive/internal/metadataindex/sqlitebackend/migrations"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

// Config configures the SQLite-backed index.
type Config struct {
	// Path is the location of the SQLite database file.
	Path string
}

// ApplyDefaults fills in Path when unset.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "warpdrive-metadata.db"
	}
}

// Index is a SQLite-backed metadataindex.Index.
type Index struct {
	db *gorm.DB
}

// New opens (and migrates) the SQLite database at cfg.Path.
func New(cfg Config) (*Index, error) {
	cfg.ApplyDefaults()

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitebackend: create database directory: %w", err)
		}
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: underlying sql.DB: %w", err)
	}
	if err := migrations.Apply(sqlDB); err != nil {
		return nil, fmt.Errorf("sqlitebackend: apply migrations: %w", err)
	}

	return &Index{db: db}, nil
}

func marshalRanges(ranges []chunkstore.Range) (string, error) {
	b, err := json.Marshal(ranges)
	if err != nil {
		return "", fmt.Errorf("sqlitebackend: marshal ranges: %w", err)
	}
	return string(b), nil
}

func unmarshalRanges(s string) ([]chunkstore.Range, error) {
	var ranges []chunkstore.Range
	if s == "" {
		return ranges, nil
	}
	if err := json.Unmarshal([]byte(s), &ranges); err != nil {
		return nil, fmt.Errorf("sqlitebackend: unmarshal ranges: %w", err)
	}
	return ranges, nil
}

func toRecord(row objectRow) (metadataindex.Record, error) {
	ranges, err := unmarshalRanges(row.RangesJSON)
	if err != nil {
		return metadataindex.Record{}, err
	}
	return metadataindex.Record{
		Key:       row.Key,
		Ranges:    ranges,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (idx *Index) findObject(tx *gorm.DB, t tenant.Context, key string) (objectRow, error) {
	var row objectRow
	err := tx.Where("user_id = ? AND bucket = ? AND key = ?", t.UserID, t.Bucket, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return objectRow{}, metadataindex.ErrNotFound
	}
	if err != nil {
		return objectRow{}, fmt.Errorf("sqlitebackend: lookup object: %w", err)
	}
	return row, nil
}

func (idx *Index) queueDeletionTx(tx *gorm.DB, t tenant.Context, ranges []chunkstore.Range) error {
	if len(ranges) == 0 {
		return nil
	}
	rangesJSON, err := marshalRanges(ranges)
	if err != nil {
		return err
	}
	row := deletionQueueRow{
		UserID:     t.UserID,
		Bucket:     t.Bucket,
		RangesJSON: rangesJSON,
		QueuedAt:   time.Now(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("sqlitebackend: queue deletion: %w", err)
	}
	return nil
}

// Put creates or overwrites key's manifest without queuing old ranges.
func (idx *Index) Put(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error {
	rangesJSON, err := marshalRanges(ranges)
	if err != nil {
		return err
	}

	return idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := idx.findObject(tx, t, key)
		now := time.Now()
		if errors.Is(err, metadataindex.ErrNotFound) {
			return tx.Create(&objectRow{
				UserID: t.UserID, Bucket: t.Bucket, Key: key,
				RangesJSON: rangesJSON, CreatedAt: now, UpdatedAt: now,
			}).Error
		}
		if err != nil {
			return err
		}
		existing.RangesJSON = rangesJSON
		existing.UpdatedAt = now
		return tx.Save(&existing).Error
	})
}

// Get returns key's manifest.
func (idx *Index) Get(ctx context.Context, t tenant.Context, key string) (metadataindex.Record, error) {
	row, err := idx.findObject(idx.db.WithContext(ctx), t, key)
	if err != nil {
		return metadataindex.Record{}, err
	}
	return toRecord(row)
}

// Update overwrites key's manifest, queuing the old ranges in the same
// transaction if key existed.
func (idx *Index) Update(ctx context.Context, t tenant.Context, key string, ranges []chunkstore.Range) error {
	rangesJSON, err := marshalRanges(ranges)
	if err != nil {
		return err
	}

	return idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := idx.findObject(tx, t, key)
		now := time.Now()
		if errors.Is(err, metadataindex.ErrNotFound) {
			return tx.Create(&objectRow{
				UserID: t.UserID, Bucket: t.Bucket, Key: key,
				RangesJSON: rangesJSON, CreatedAt: now, UpdatedAt: now,
			}).Error
		}
		if err != nil {
			return err
		}

		oldRanges, err := unmarshalRanges(existing.RangesJSON)
		if err != nil {
			return err
		}
		if err := idx.queueDeletionTx(tx, t, oldRanges); err != nil {
			return err
		}

		existing.RangesJSON = rangesJSON
		existing.UpdatedAt = now
		return tx.Save(&existing).Error
	})
}

// Delete removes key's manifest and queues its ranges. An absent key is
// not an error.
func (idx *Index) Delete(ctx context.Context, t tenant.Context, key string) error {
	return idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := idx.findObject(tx, t, key)
		if errors.Is(err, metadataindex.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ranges, err := unmarshalRanges(existing.RangesJSON)
		if err != nil {
			return err
		}
		if err := idx.queueDeletionTx(tx, t, ranges); err != nil {
			return err
		}
		return tx.Delete(&existing).Error
	})
}

// Rename moves oldKey's manifest to newKey, queuing newKey's old ranges
// if it already existed.
func (idx *Index) Rename(ctx context.Context, t tenant.Context, oldKey, newKey string) error {
	return idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := idx.findObject(tx, t, oldKey)
		if err != nil {
			return err
		}

		dst, err := idx.findObject(tx, t, newKey)
		switch {
		case errors.Is(err, metadataindex.ErrNotFound):
			// nothing to queue
		case err != nil:
			return err
		default:
			dstRanges, err := unmarshalRanges(dst.RangesJSON)
			if err != nil {
				return err
			}
			if err := idx.queueDeletionTx(tx, t, dstRanges); err != nil {
				return err
			}
			if err := tx.Delete(&dst).Error; err != nil {
				return fmt.Errorf("sqlitebackend: delete rename destination: %w", err)
			}
		}

		src.Key = newKey
		src.UpdatedAt = time.Now()
		return tx.Save(&src).Error
	})
}

// Exists reports whether key has a manifest.
func (idx *Index) Exists(ctx context.Context, t tenant.Context, key string) (bool, error) {
	var count int64
	err := idx.db.WithContext(ctx).Model(&objectRow{}).
		Where("user_id = ? AND bucket = ? AND key = ?", t.UserID, t.Bucket, key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("sqlitebackend: exists: %w", err)
	}
	return count > 0, nil
}

// List returns every key in the tenant's bucket with the given prefix.
func (idx *Index) List(ctx context.Context, t tenant.Context, prefix string) ([]string, error) {
	var rows []objectRow
	err := idx.db.WithContext(ctx).
		Where("user_id = ? AND bucket = ? AND key LIKE ?", t.UserID, t.Bucket, prefix+"%").
		Order("key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: list: %w", err)
	}

	// LIKE is case-insensitive for ASCII and treats '_' and '%' in prefix
	// as wildcards, so keep only keys that carry prefix exactly.
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		if strings.HasPrefix(r.Key, prefix) {
			keys = append(keys, r.Key)
		}
	}
	return keys, nil
}

// QueueDeletion enqueues ranges for later reclamation.
func (idx *Index) QueueDeletion(ctx context.Context, t tenant.Context, ranges []chunkstore.Range) error {
	return idx.queueDeletionTx(idx.db.WithContext(ctx), t, ranges)
}

// PendingDeletions returns up to limit unprocessed tasks, oldest first.
func (idx *Index) PendingDeletions(ctx context.Context, limit int) ([]metadataindex.DeletionTask, error) {
	var rows []deletionQueueRow
	q := idx.db.WithContext(ctx).Where("processed = ?", false).Order("queued_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlitebackend: pending deletions: %w", err)
	}

	tasks := make([]metadataindex.DeletionTask, 0, len(rows))
	for _, r := range rows {
		ranges, err := unmarshalRanges(r.RangesJSON)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, metadataindex.DeletionTask{
			ID: r.ID, UserID: r.UserID, Bucket: r.Bucket,
			Ranges: ranges, QueuedAt: r.QueuedAt, Processed: r.Processed,
		})
	}
	return tasks, nil
}

// PendingDeletionCount returns the total number of unprocessed tasks.
func (idx *Index) PendingDeletionCount(ctx context.Context) (int, error) {
	var count int64
	err := idx.db.WithContext(ctx).Model(&deletionQueueRow{}).
		Where("processed = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("sqlitebackend: pending deletion count: %w", err)
	}
	return int(count), nil
}

// MarkProcessed marks a deletion task as processed.
func (idx *Index) MarkProcessed(ctx context.Context, id int64) error {
	result := idx.db.WithContext(ctx).Model(&deletionQueueRow{}).
		Where("id = ?", id).
		Update("processed", true)
	if result.Error != nil {
		return fmt.Errorf("sqlitebackend: mark processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return metadataindex.ErrNotFound
	}
	return nil
}

// GCProcessed removes processed tasks queued before cutoff.
func (idx *Index) GCProcessed(ctx context.Context, cutoff time.Time) error {
	err := idx.db.WithContext(ctx).
		Where("processed = ? AND queued_at < ?", true, cutoff).
		Delete(&deletionQueueRow{}).Error
	if err != nil {
		return fmt.Errorf("sqlitebackend: gc processed: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return fmt.Errorf("sqlitebackend: underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck confirms the database connection is alive.
func (idx *Index) HealthCheck(ctx context.Context) error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return fmt.Errorf("sqlitebackend: underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlitebackend: ping: %w", err)
	}
	return nil
}

var _ metadataindex.Index = (*Index)(nil)
