package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

const snapshotColumns = `id, project_id, author, device_ids, created_at`

// SnapshotRepository provides database access for the append-only snapshot
// log. Snapshots are never updated or deleted while their project lives.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository creates a new instance of SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert appends a new snapshot for a project.
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO project_snapshots (` + snapshotColumns + `) VALUES (:id, :project_id, :author, :device_ids, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot for a project, which defines the
// project's current device set. sql.ErrNoRows means the project has never
// had content written.
func (r *SnapshotRepository) Latest(ctx context.Context, projectID string) (*models.Snapshot, error) {
	const query = `SELECT ` + snapshotColumns + ` FROM project_snapshots WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`
	var snapshot models.Snapshot
	if err := r.db.GetContext(ctx, &snapshot, query, projectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// LatestAsOf returns the newest snapshot at or before the given moment,
// resolving time-travel and tag queries.
func (r *SnapshotRepository) LatestAsOf(ctx context.Context, projectID string, asOf time.Time) (*models.Snapshot, error) {
	const query = `SELECT ` + snapshotColumns + ` FROM project_snapshots WHERE project_id = $1 AND created_at <= $2 ORDER BY created_at DESC LIMIT 1`
	var snapshot models.Snapshot
	if err := r.db.GetContext(ctx, &snapshot, query, projectID, asOf.UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("snapshot as of %s: %w", asOf.Format(time.RFC3339), err)
	}
	return &snapshot, nil
}
