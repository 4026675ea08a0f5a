package sqlitebackend

import "time"

// objectRow is the GORM model backing the objects table: one row per
// (user_id, bucket, key) manifest.
type objectRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	UserID     string `gorm:"column:user_id;index:idx_objects_lookup,priority:1"`
	Bucket     string `gorm:"column:bucket;index:idx_objects_lookup,priority:2"`
	Key        string `gorm:"column:key;index:idx_objects_lookup,priority:3"`
	RangesJSON string `gorm:"column:ranges_json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (objectRow) TableName() string { return "objects" }

// deletionQueueRow is the GORM model backing the deletion_queue table.
type deletionQueueRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	UserID     string `gorm:"column:user_id"`
	Bucket     string `gorm:"column:bucket"`
	RangesJSON string `gorm:"column:ranges_json"`
	QueuedAt   time.Time
	Processed  bool
}

func (deletionQueueRow) TableName() string { return "deletion_queue" }
