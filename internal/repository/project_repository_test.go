package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func projectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "owner", "editors", "approvers", "approved_by",
		"status", "submitter", "notes", "created_at", "submitted_at", "approved_at", "edited_at",
	})
}

func TestProjectRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	project := &models.Project{
		Name:    "LCLS Run 42",
		Owner:   "jdoe",
		Editors: pq.StringArray{"asmith"},
	}
	require.NoError(t, repo.Create(context.Background(), project))
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, models.StatusDevelopment, project.Status)
	assert.False(t, project.CreatedAt.IsZero())
}

func TestProjectRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProjectRepositoryListScopesToUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	rows := projectRows().AddRow(
		"proj-1", "LCLS Run 42", "", "jdoe",
		"{}", "{}", "{}",
		"development", nil, "{}", time.Now().UTC(), nil, nil, nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(string(models.StatusHidden), "jdoe", "Machine Configuration Database").
		WillReturnRows(rows)

	projects, err := repo.List(context.Background(), models.ProjectFilter{
		Username:   "jdoe",
		MasterName: "Machine Configuration Database",
	})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "proj-1", projects[0].ID)
}

func TestProjectRepositoryListAdminSkipsScope(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(string(models.StatusHidden)).
		WillReturnRows(projectRows())

	_, err := repo.List(context.Background(), models.ProjectFilter{
		Username: "admin-1",
		IsAdmin:  true,
	})
	require.NoError(t, err)
}

func TestProjectRepositoryListPendingApproval(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	submitted := time.Now().UTC()
	rows := projectRows().AddRow(
		"proj-1", "LCLS Run 42", "", "jdoe",
		"{}", "{rev1}", "{}",
		"submitted", "editor1", "{}", submitted.Add(-time.Hour), submitted, nil, nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("rev1", string(models.StatusSubmitted)).
		WillReturnRows(rows)

	projects, err := repo.ListPendingApproval(context.Background(), "rev1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, models.StatusSubmitted, projects[0].Status)
}

func TestProjectRepositoryUpdateWorkflowMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateWorkflow(context.Background(), &models.Project{ID: "ghost"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProjectRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM project_tags")).
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM project_snapshots")).
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects")).
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "proj-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
