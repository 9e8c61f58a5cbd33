package models

import "time"

// ChangeEntry is one write-once record of a device field change. Entries
// are append-only: they are never mutated or deleted, even when the device
// or the project goes away.
type ChangeEntry struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	FC        string    `db:"fc" json:"fc"`
	Field     string    `db:"field" json:"field"`
	OldValue  *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue  *string   `db:"new_value" json:"new_value"`
	Actor     string    `db:"actor" json:"actor"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ApprovalEntry records one project becoming the approved configuration.
// Latest-first listings of these entries form the approval history.
type ApprovalEntry struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	Submitter   string    `db:"submitter" json:"submitter"`
	SwitchedAt  time.Time `db:"switched_at" json:"switched_at"`
	ProjectName string    `db:"project_name" json:"project_name"`
	Description string    `db:"description" json:"description"`
	Owner       string    `db:"owner" json:"owner"`
}
