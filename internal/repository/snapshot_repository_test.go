package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

func TestSnapshotRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO project_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := &models.Snapshot{
		ProjectID: "proj-1",
		Author:    "jdoe",
		DeviceIDs: []string{"dev-1", "dev-2"},
	}
	require.NoError(t, repo.Insert(context.Background(), snapshot))
	assert.NotEmpty(t, snapshot.ID)
}

func TestSnapshotRepositoryLatestNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("proj-empty").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background(), "proj-empty")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSnapshotRepositoryLatestAsOf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	asOf := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "project_id", "author", "device_ids", "created_at"}).
		AddRow("snap-1", "proj-1", "jdoe", "{dev-1}", asOf.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("proj-1", asOf).
		WillReturnRows(rows)

	snapshot, err := repo.LatestAsOf(context.Background(), "proj-1", asOf)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", snapshot.ID)
	require.Len(t, snapshot.DeviceIDs, 1)
	assert.Equal(t, "dev-1", snapshot.DeviceIDs[0])
}
