package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

// projectColumns are the stored columns of the projects table, plus the
// derived edited_at computed from the newest snapshot.
const projectColumns = `p.id, p.name, p.description, p.owner, p.editors, p.approvers, p.approved_by, p.status, p.submitter, p.notes, p.created_at, p.submitted_at, p.approved_at, s.edited_at`

const projectFrom = `
FROM projects p
LEFT JOIN (
	SELECT project_id, MAX(created_at) AS edited_at
	FROM project_snapshots
	GROUP BY project_id
) s ON s.project_id = p.id`

// ProjectRepository provides database access for projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new instance of ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project row.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	if project.Status == "" {
		project.Status = models.StatusDevelopment
	}

	const query = `INSERT INTO projects (id, name, description, owner, editors, approvers, approved_by, status, submitter, notes, created_at, submitted_at, approved_at)
VALUES (:id, :name, :description, :owner, :editors, :approvers, :approved_by, :status, :submitter, :notes, :created_at, :submitted_at, :approved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// FindByID returns a project by identifier.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + projectFrom + ` WHERE p.id = $1 LIMIT 1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	return &project, nil
}

// FindByName returns a project by its unique name.
func (r *ProjectRepository) FindByName(ctx context.Context, name string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + projectFrom + ` WHERE p.name = $1 LIMIT 1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by name: %w", err)
	}
	return &project, nil
}

// List returns projects visible under the filter, newest first.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + projectColumns + projectFrom + ` WHERE 1=1`)

	var args []interface{}
	if !filter.IncludeHidden {
		args = append(args, models.StatusHidden)
		fmt.Fprintf(&query, " AND p.status <> $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&query, " AND p.status = $%d", len(args))
	}
	if !filter.IsAdmin && filter.Username != "" {
		args = append(args, filter.Username)
		user := len(args)
		if filter.MasterName != "" {
			args = append(args, filter.MasterName)
			fmt.Fprintf(&query, " AND (p.owner = $%d OR $%d = ANY(p.editors) OR $%d = ANY(p.approvers) OR p.name = $%d)", user, user, user, len(args))
		} else {
			fmt.Fprintf(&query, " AND (p.owner = $%d OR $%d = ANY(p.editors) OR $%d = ANY(p.approvers))", user, user, user)
		}
	}
	query.WriteString("\nORDER BY p.created_at DESC")

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Update persists mutable project metadata.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	const query = `UPDATE projects SET name = :name, description = :description, editors = :editors WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateWorkflow persists the approval workflow fields of a project in one
// write: status, approver sets, submitter and the workflow timestamps.
func (r *ProjectRepository) UpdateWorkflow(ctx context.Context, project *models.Project) error {
	const query = `UPDATE projects SET status = :status, approvers = :approvers, approved_by = :approved_by, submitter = :submitter, notes = :notes, submitted_at = :submitted_at, approved_at = :approved_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update project workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project workflow rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus updates only the status column.
func (r *ProjectRepository) SetStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	const query = `UPDATE projects SET status = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set project status rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the project row permanently. Device revisions and change
// entries are kept; only the project and its snapshots and tags go away.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin project delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM project_tags WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project tags: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM project_snapshots WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project snapshots: %w", err)
	}
	var result sql.Result
	if result, err = tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	var rows int64
	if rows, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("delete project rows affected: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit project delete: %w", err)
	}
	return nil
}

// ListPendingApproval returns submitted projects that list the user as an
// approver, oldest submission first.
func (r *ProjectRepository) ListPendingApproval(ctx context.Context, username string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + projectFrom + ` WHERE $1 = ANY(p.approvers) AND p.status = $2 ORDER BY p.submitted_at ASC`
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, username, models.StatusSubmitted); err != nil {
		return nil, fmt.Errorf("list projects pending approval: %w", err)
	}
	return projects, nil
}
