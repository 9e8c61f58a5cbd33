package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

// HistoryRepository provides database access for the write-once change log
// and the approval history.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new instance of HistoryRepository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// InsertChanges appends change entries in one transaction. Entries are
// never updated or deleted afterwards.
func (r *HistoryRepository) InsertChanges(ctx context.Context, entries []models.ChangeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin change log: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO device_changes (id, project_id, device_id, fc, field, old_value, new_value, actor, created_at)
VALUES (:id, :project_id, :device_id, :fc, :field, :old_value, :new_value, :actor, :created_at)`
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, query, entries[i]); err != nil {
			return fmt.Errorf("insert change entry: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit change log: %w", err)
	}
	return nil
}

// ListChanges returns the change log for a project, newest first.
func (r *HistoryRepository) ListChanges(ctx context.Context, projectID string, limit int) ([]models.ChangeEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	const query = `SELECT id, project_id, device_id, fc, field, old_value, new_value, actor, created_at
FROM device_changes WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.ChangeEntry
	if err := r.db.SelectContext(ctx, &entries, query, projectID, limit); err != nil {
		return nil, fmt.Errorf("list change entries: %w", err)
	}
	return entries, nil
}

// ListDeviceChanges returns the change log for one device across all its
// revisions, newest first.
func (r *HistoryRepository) ListDeviceChanges(ctx context.Context, projectID, fc string, limit int) ([]models.ChangeEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	const query = `SELECT id, project_id, device_id, fc, field, old_value, new_value, actor, created_at
FROM device_changes WHERE project_id = $1 AND fc = $2 ORDER BY created_at DESC LIMIT $3`
	var entries []models.ChangeEntry
	if err := r.db.SelectContext(ctx, &entries, query, projectID, fc, limit); err != nil {
		return nil, fmt.Errorf("list device change entries: %w", err)
	}
	return entries, nil
}

// InsertApproval records a project becoming the approved configuration.
func (r *HistoryRepository) InsertApproval(ctx context.Context, entry *models.ApprovalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SwitchedAt.IsZero() {
		entry.SwitchedAt = time.Now().UTC()
	}
	const query = `INSERT INTO project_approvals (id, project_id, submitter, switched_at, project_name, description, owner)
VALUES (:id, :project_id, :submitter, :switched_at, :project_name, :description, :owner)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert approval entry: %w", err)
	}
	return nil
}

// ListApprovals returns the approval history, newest first.
func (r *HistoryRepository) ListApprovals(ctx context.Context, limit int) ([]models.ApprovalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, project_id, submitter, switched_at, project_name, description, owner
FROM project_approvals ORDER BY switched_at DESC LIMIT $1`
	var entries []models.ApprovalEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list approval entries: %w", err)
	}
	return entries, nil
}
