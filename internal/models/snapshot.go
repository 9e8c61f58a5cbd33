package models

import (
	"time"

	"github.com/lib/pq"
)

// Snapshot is an append-only pointer set: the devices a project contained
// at one point in time. The newest snapshot for a project is its current
// content. Snapshots are never mutated or deleted while the project lives;
// removing a device simply writes a new snapshot without it.
type Snapshot struct {
	ID        string         `db:"id" json:"id"`
	ProjectID string         `db:"project_id" json:"project_id"`
	Author    string         `db:"author" json:"author"`
	DeviceIDs pq.StringArray `db:"device_ids" json:"device_ids"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Tag is a named, immutable pointer to a historical state of a project.
// Fetching devices "as of" a tag resolves to the newest snapshot at or
// before the tag's timestamp.
type Tag struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	AsOf      time.Time `db:"as_of" json:"as_of"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
