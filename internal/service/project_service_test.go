package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type projectStoreStub struct {
	projects map[string]*models.Project
	byName   map[string]*models.Project
	statuses map[string]models.ProjectStatus
	deleted  []string
	filter   *models.ProjectFilter
}

func newProjectStoreStub() *projectStoreStub {
	return &projectStoreStub{
		projects: map[string]*models.Project{},
		byName:   map[string]*models.Project{},
		statuses: map[string]models.ProjectStatus{},
	}
}

func (s *projectStoreStub) add(p *models.Project) {
	s.projects[p.ID] = p
	s.byName[p.Name] = p
}

func (s *projectStoreStub) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.StatusDevelopment
	}
	s.add(project)
	return nil
}

func (s *projectStoreStub) FindByID(ctx context.Context, id string) (*models.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *projectStoreStub) FindByName(ctx context.Context, name string) (*models.Project, error) {
	if p, ok := s.byName[name]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *projectStoreStub) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	s.filter = &filter
	var out []models.Project
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (s *projectStoreStub) Update(ctx context.Context, project *models.Project) error {
	if _, ok := s.projects[project.ID]; !ok {
		return sql.ErrNoRows
	}
	s.add(project)
	return nil
}

func (s *projectStoreStub) SetStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	p, ok := s.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	s.statuses[id] = status
	return nil
}

func (s *projectStoreStub) ListPendingApproval(ctx context.Context, username string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range s.projects {
		if p.Status == models.StatusSubmitted && p.IsApprover(username) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *projectStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.projects[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.projects, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type cloneDeviceStub struct {
	devices  map[string]models.Device
	inserted []*models.Device
}

func (s *cloneDeviceStub) FindByID(ctx context.Context, id string) (*models.Device, error) {
	if d, ok := s.devices[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *cloneDeviceStub) FindByIDs(ctx context.Context, ids []string) ([]models.Device, error) {
	var out []models.Device
	for _, id := range ids {
		if d, ok := s.devices[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *cloneDeviceStub) Insert(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	s.inserted = append(s.inserted, device)
	return nil
}

func (s *cloneDeviceStub) InsertBatch(ctx context.Context, devices []*models.Device) error {
	for _, d := range devices {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
	}
	s.inserted = append(s.inserted, devices...)
	return nil
}

type projectFixture struct {
	store     *projectStoreStub
	snapshots *approvalSnapshotStub
	devices   *cloneDeviceStub
	roles     *roleDirectoryStub
	svc       *ProjectService
}

func newProjectFixture() *projectFixture {
	f := &projectFixture{
		store:     newProjectStoreStub(),
		snapshots: &approvalSnapshotStub{latest: map[string]*models.Snapshot{}},
		devices:   &cloneDeviceStub{devices: map[string]models.Device{}},
		roles:     &roleDirectoryStub{},
	}
	f.svc = NewProjectService(f.store, f.snapshots, f.devices, f.roles, nil, "Master", nil, nil)
	return f
}

func userClaims(username string, roles ...string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "uid-" + username, Username: username, Roles: roles}
}

func TestEnsureMasterBootstrapsOnce(t *testing.T) {
	f := newProjectFixture()

	master, err := f.svc.EnsureMaster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Master", master.Name)
	assert.Equal(t, "system", master.Owner)
	assert.Equal(t, models.StatusApproved, master.Status)
	assert.NotNil(t, master.ApprovedAt)

	again, err := f.svc.EnsureMaster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, master.ID, again.ID)
	assert.Len(t, f.store.projects, 1)
}

func TestCreateProjectStartsInDevelopment(t *testing.T) {
	f := newProjectFixture()
	project, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{
		Name:    "LCLS Run 42",
		Editors: []string{"editor1", "editor1", "editor2"},
	}, userClaims("jdoe"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusDevelopment, project.Status)
	assert.Equal(t, "jdoe", project.Owner)
	assert.Equal(t, []string{"editor1", "editor2"}, []string(project.Editors))
}

func TestCreateProjectRejectsReservedName(t *testing.T) {
	f := newProjectFixture()
	_, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{Name: "Master"}, userClaims("jdoe"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateProjectRejectsSuperApproverAsOwnerOrEditor(t *testing.T) {
	f := newProjectFixture()
	f.roles.supers = []string{"super1"}

	_, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{Name: "P1"}, userClaims("super1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Create(context.Background(), dto.CreateProjectRequest{
		Name:    "P1",
		Editors: []string{"super1"},
	}, userClaims("jdoe"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateProjectRejectsDuplicateName(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "p1", Name: "LCLS Run 42", Owner: "other"})

	_, err := f.svc.Create(context.Background(), dto.CreateProjectRequest{Name: "LCLS Run 42"}, userClaims("jdoe"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCloneCopiesCurrentDevices(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "src", Name: "Source", Owner: "jdoe", Status: models.StatusDevelopment})
	f.devices.devices["dev-1"] = models.Device{ID: "dev-1", ProjectID: "src", FC: "AT1L0-GAS", State: models.StateConceptual}
	f.snapshots.latest["src"] = &models.Snapshot{ProjectID: "src", DeviceIDs: []string{"dev-1"}}

	clone, err := f.svc.Clone(context.Background(), "src",
		dto.CloneProjectRequest{Name: "Copy of Source"}, userClaims("jdoe"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDevelopment, clone.Status)

	require.Len(t, f.devices.inserted, 1)
	copied := f.devices.inserted[0]
	assert.Equal(t, clone.ID, copied.ProjectID)
	assert.Equal(t, "AT1L0-GAS", copied.FC)
	assert.NotEqual(t, "dev-1", copied.ID)

	require.Len(t, f.snapshots.inserted, 1)
	assert.Equal(t, clone.ID, f.snapshots.inserted[0].ProjectID)
	assert.Equal(t, []string{copied.ID}, []string(f.snapshots.inserted[0].DeviceIDs))
}

func TestCloneEmptySourceMakesEmptyProject(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "src", Name: "Source", Owner: "jdoe", Status: models.StatusDevelopment})

	_, err := f.svc.Clone(context.Background(), "src",
		dto.CloneProjectRequest{Name: "Copy of Source"}, userClaims("jdoe"))
	require.NoError(t, err)
	assert.Empty(t, f.devices.inserted)
	assert.Empty(t, f.snapshots.inserted)
}

func TestUpdateMasterIsForbidden(t *testing.T) {
	f := newProjectFixture()
	master, err := f.svc.EnsureMaster(context.Background())
	require.NoError(t, err)

	name := "Renamed"
	_, err = f.svc.Update(context.Background(), master.ID,
		dto.UpdateProjectRequest{Name: &name}, userClaims("root", string(models.RoleAdmin)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateRequiresDevelopmentState(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "p1", Name: "P1", Owner: "jdoe", Status: models.StatusSubmitted})

	desc := "new description"
	_, err := f.svc.Update(context.Background(), "p1",
		dto.UpdateProjectRequest{Description: &desc}, userClaims("jdoe"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestDeleteByOwnerHidesProject(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "p1", Name: "P1", Owner: "jdoe", Status: models.StatusDevelopment})

	err := f.svc.Delete(context.Background(), "p1", userClaims("jdoe"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusHidden, f.store.statuses["p1"])
	assert.Empty(t, f.store.deleted, "owner delete must keep the row")
}

func TestDeleteByAdminRemovesRow(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "p1", Name: "P1", Owner: "jdoe", Status: models.StatusDevelopment})

	err := f.svc.Delete(context.Background(), "p1", userClaims("root", string(models.RoleAdmin)))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, f.store.deleted)
}

func TestDeleteMasterIsForbidden(t *testing.T) {
	f := newProjectFixture()
	master, err := f.svc.EnsureMaster(context.Background())
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), master.ID, userClaims("root", string(models.RoleAdmin)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDeleteByStrangerIsForbidden(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{ID: "p1", Name: "P1", Owner: "jdoe", Status: models.StatusDevelopment})

	err := f.svc.Delete(context.Background(), "p1", userClaims("stranger"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGetHiddenProjectForbiddenForMembers(t *testing.T) {
	f := newProjectFixture()
	f.store.add(&models.Project{
		ID: "p1", Name: "P1", Owner: "jdoe",
		Editors: []string{"editor1"}, Status: models.StatusHidden,
	})

	_, err := f.svc.Get(context.Background(), "p1", userClaims("editor1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	// Admins still see hidden projects.
	_, err = f.svc.Get(context.Background(), "p1", userClaims("root", string(models.RoleAdmin)))
	assert.NoError(t, err)
}

func TestListPendingApprovalSkipsAlreadyApproved(t *testing.T) {
	f := newProjectFixture()
	submitter := "editor1"
	f.store.add(&models.Project{
		ID: "p1", Name: "P1", Owner: "jdoe", Status: models.StatusSubmitted,
		Submitter: &submitter, Approvers: []string{"rev1", "rev2"},
	})
	f.store.add(&models.Project{
		ID: "p2", Name: "P2", Owner: "jdoe", Status: models.StatusSubmitted,
		Submitter: &submitter, Approvers: []string{"rev1"}, ApprovedBy: []string{"rev1"},
	})

	pending, err := f.svc.ListPendingApproval(context.Background(), userClaims("rev1"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "P1", pending[0].Name)

	none, err := f.svc.ListPendingApproval(context.Background(), userClaims("stranger"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListOnlyAdminsMayIncludeHidden(t *testing.T) {
	f := newProjectFixture()

	_, err := f.svc.List(context.Background(), userClaims("jdoe"), true)
	require.NoError(t, err)
	require.NotNil(t, f.store.filter)
	assert.False(t, f.store.filter.IncludeHidden)

	_, err = f.svc.List(context.Background(), userClaims("root", string(models.RoleAdmin)), true)
	require.NoError(t, err)
	assert.True(t, f.store.filter.IncludeHidden)
}
