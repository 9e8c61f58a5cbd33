package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

const deviceColumns = `id, project_id, fc, fg, state, tc_part_no, stand, area, beamline, comments, nom_loc_x, nom_loc_y, nom_loc_z, nom_ang_x, nom_ang_y, nom_ang_z, nom_dim_x, nom_dim_y, nom_dim_z, ray_trace, discussion, created_at`

// DeviceRepository provides database access for immutable device revisions.
// Rows are insert-only: editing a device writes a new revision and repoints
// the owning project's snapshot.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Insert stores one new device revision.
func (r *DeviceRepository) Insert(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO devices (` + deviceColumns + `)
VALUES (:id, :project_id, :fc, :fg, :state, :tc_part_no, :stand, :area, :beamline, :comments, :nom_loc_x, :nom_loc_y, :nom_loc_z, :nom_ang_x, :nom_ang_y, :nom_ang_z, :nom_dim_x, :nom_dim_y, :nom_dim_z, :ray_trace, :discussion, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, device); err != nil {
		return fmt.Errorf("insert device revision: %w", err)
	}
	return nil
}

// InsertBatch stores a set of new device revisions in one transaction.
func (r *DeviceRepository) InsertBatch(ctx context.Context, devices []*models.Device) error {
	if len(devices) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin device batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO devices (` + deviceColumns + `)
VALUES (:id, :project_id, :fc, :fg, :state, :tc_part_no, :stand, :area, :beamline, :comments, :nom_loc_x, :nom_loc_y, :nom_loc_z, :nom_ang_x, :nom_ang_y, :nom_ang_z, :nom_dim_x, :nom_dim_y, :nom_dim_z, :ray_trace, :discussion, :created_at)`
	now := time.Now().UTC()
	for _, device := range devices {
		if device.ID == "" {
			device.ID = uuid.NewString()
		}
		if device.CreatedAt.IsZero() {
			device.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, query, device); err != nil {
			return fmt.Errorf("insert device revision %s: %w", device.FC, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit device batch: %w", err)
	}
	return nil
}

// FindByID returns a single device revision.
func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*models.Device, error) {
	const query = `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 LIMIT 1`
	var device models.Device
	if err := r.db.GetContext(ctx, &device, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find device by id: %w", err)
	}
	return &device, nil
}

// FindByIDs returns the revisions for the given identifiers, ordered by fc.
// Missing identifiers are silently skipped; callers that need strictness
// compare lengths.
func (r *DeviceRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + deviceColumns + ` FROM devices WHERE id = ANY($1) ORDER BY fc ASC, fg ASC`
	var devices []models.Device
	if err := r.db.SelectContext(ctx, &devices, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find devices by ids: %w", err)
	}
	return devices, nil
}

// UpdateDiscussion rewrites the discussion thread on an existing revision.
// Discussion is the one mutable column: comments attach to the revision
// without producing a new one.
func (r *DeviceRepository) UpdateDiscussion(ctx context.Context, id string, discussion models.CommentList) error {
	const query = `UPDATE devices SET discussion = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, discussion)
	if err != nil {
		return fmt.Errorf("update device discussion: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update device discussion rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchFCs returns distinct fc identifiers from the project's current
// snapshot matching the prefix, for autocomplete. The match is
// case-insensitive.
func (r *DeviceRepository) SearchFCs(ctx context.Context, projectID, prefix string, limit int) ([]string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT DISTINCT d.fc FROM devices d
JOIN project_snapshots s ON d.id = ANY(s.device_ids)
WHERE s.project_id = $1
  AND s.created_at = (SELECT MAX(created_at) FROM project_snapshots WHERE project_id = $1)
  AND LOWER(d.fc) LIKE $2
ORDER BY d.fc ASC LIMIT $3`
	var fcs []string
	pattern := strings.ToLower(prefix) + "%"
	if err := r.db.SelectContext(ctx, &fcs, query, projectID, pattern, limit); err != nil {
		return nil, fmt.Errorf("search fcs: %w", err)
	}
	return fcs, nil
}
