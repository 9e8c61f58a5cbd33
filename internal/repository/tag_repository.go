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

// TagRepository provides database access for named project timestamps.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository creates a new instance of TagRepository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Insert stores a new tag. Tag names are unique per project; the unique
// constraint surfaces as an error here.
func (r *TagRepository) Insert(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO project_tags (id, project_id, name, as_of, created_at) VALUES (:id, :project_id, :name, :as_of, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tag); err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// FindByName returns one tag of a project.
func (r *TagRepository) FindByName(ctx context.Context, projectID, name string) (*models.Tag, error) {
	const query = `SELECT id, project_id, name, as_of, created_at FROM project_tags WHERE project_id = $1 AND name = $2 LIMIT 1`
	var tag models.Tag
	if err := r.db.GetContext(ctx, &tag, query, projectID, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tag by name: %w", err)
	}
	return &tag, nil
}

// ListByProject returns all tags of a project, newest moment first.
func (r *TagRepository) ListByProject(ctx context.Context, projectID string) ([]models.Tag, error) {
	const query = `SELECT id, project_id, name, as_of, created_at FROM project_tags WHERE project_id = $1 ORDER BY as_of DESC`
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, projectID); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}
