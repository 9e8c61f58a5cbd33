package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type approvalProjectStub struct {
	projects map[string]*models.Project
	byName   map[string]*models.Project
	updated  []*models.Project
	workflow []*models.Project
}

func (s *approvalProjectStub) FindByID(ctx context.Context, id string) (*models.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalProjectStub) FindByName(ctx context.Context, name string) (*models.Project, error) {
	if p, ok := s.byName[name]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalProjectStub) Update(ctx context.Context, project *models.Project) error {
	s.updated = append(s.updated, project)
	return nil
}

func (s *approvalProjectStub) UpdateWorkflow(ctx context.Context, project *models.Project) error {
	s.workflow = append(s.workflow, project)
	return nil
}

type approvalSnapshotStub struct {
	latest   map[string]*models.Snapshot
	inserted []*models.Snapshot
}

func (s *approvalSnapshotStub) Latest(ctx context.Context, projectID string) (*models.Snapshot, error) {
	if snap, ok := s.latest[projectID]; ok {
		return snap, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalSnapshotStub) LatestAsOf(ctx context.Context, projectID string, asOf time.Time) (*models.Snapshot, error) {
	return s.Latest(ctx, projectID)
}

func (s *approvalSnapshotStub) Insert(ctx context.Context, snapshot *models.Snapshot) error {
	s.inserted = append(s.inserted, snapshot)
	return nil
}

type approvalDeviceStub struct {
	devices  map[string]models.Device
	inserted []*models.Device
}

func (s *approvalDeviceStub) FindByID(ctx context.Context, id string) (*models.Device, error) {
	if d, ok := s.devices[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalDeviceStub) FindByIDs(ctx context.Context, ids []string) ([]models.Device, error) {
	var out []models.Device
	for _, id := range ids {
		if d, ok := s.devices[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *approvalDeviceStub) Insert(ctx context.Context, device *models.Device) error {
	s.inserted = append(s.inserted, device)
	return nil
}

func (s *approvalDeviceStub) InsertBatch(ctx context.Context, devices []*models.Device) error {
	s.inserted = append(s.inserted, devices...)
	return nil
}

type approvalHistoryStub struct {
	entries []*models.ApprovalEntry
}

func (s *approvalHistoryStub) InsertApproval(ctx context.Context, entry *models.ApprovalEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type roleDirectoryStub struct {
	supers []string
}

func (s roleDirectoryStub) ListUsernamesByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	if role == models.RoleSuperApprover {
		return s.supers, nil
	}
	return nil, nil
}

type notifierStub struct {
	submitted int
	approved  int
	rejected  int
}

func (n *notifierStub) ProjectSubmitted(context.Context, *models.Project, []string) { n.submitted++ }
func (n *notifierStub) ProjectApproved(context.Context, *models.Project)           { n.approved++ }
func (n *notifierStub) ProjectRejected(context.Context, *models.Project, string, string) {
	n.rejected++
}

type approvalFixture struct {
	projects  *approvalProjectStub
	snapshots *approvalSnapshotStub
	devices   *approvalDeviceStub
	history   *approvalHistoryStub
	notifier  *notifierStub
	svc       *ApprovalService
}

func newApprovalFixture(supers []string) *approvalFixture {
	master := &models.Project{ID: "master-1", Name: "Master", Owner: "system", Status: models.StatusApproved}
	project := &models.Project{
		ID:      "proj-1",
		Name:    "LCLS Run 42",
		Owner:   "owner",
		Editors: pq.StringArray{"editor1", "editor2"},
		Status:  models.StatusDevelopment,
	}
	f := &approvalFixture{
		projects: &approvalProjectStub{
			projects: map[string]*models.Project{"proj-1": project, "master-1": master},
			byName:   map[string]*models.Project{"Master": master, "LCLS Run 42": project},
		},
		snapshots: &approvalSnapshotStub{latest: map[string]*models.Snapshot{}},
		devices:   &approvalDeviceStub{devices: map[string]models.Device{}},
		history:   &approvalHistoryStub{},
		notifier:  &notifierStub{},
	}
	f.svc = NewApprovalService(
		f.projects, f.snapshots, f.devices, f.history,
		roleDirectoryStub{supers: supers}, nil, nil, f.notifier,
		"Master", nil, nil,
	)
	return f
}

func submitClaims(username string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "uid-" + username, Username: username}
}

func TestSubmitRequiresEditorRights(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{Approvers: []string{"rev1"}}, submitClaims("stranger"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSubmitRejectsSubmitterAsApprover(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{Approvers: []string{"editor1"}}, submitClaims("editor1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsOwnerAsApprover(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{Approvers: []string{"owner"}}, submitClaims("editor1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsEmptyApproverList(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{}, submitClaims("editor1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitWithOnlySuperApproversSucceeds(t *testing.T) {
	f := newApprovalFixture([]string{"super1"})
	project, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{}, submitClaims("editor1"))
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"super1"}, project.Approvers)
}

func TestSubmitUnionsSuperApprovers(t *testing.T) {
	f := newApprovalFixture([]string{"super1", "editor1", "owner"})
	project, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{Approvers: []string{"rev1"}}, submitClaims("editor1"))
	require.NoError(t, err)

	// super1 joins; the submitter and the owner are never unioned in.
	assert.ElementsMatch(t, []string{"rev1", "super1"}, []string(project.Approvers))
	assert.Equal(t, models.StatusSubmitted, project.Status)
	require.NotNil(t, project.Submitter)
	assert.Equal(t, "editor1", *project.Submitter)
	assert.NotNil(t, project.SubmittedAt)
	assert.Equal(t, 1, f.notifier.submitted)
}

func TestSubmitStripsApproversFromEditors(t *testing.T) {
	f := newApprovalFixture(nil)
	project, err := f.svc.Submit(context.Background(), "proj-1",
		dto.SubmitProjectRequest{Approvers: []string{"editor2"}}, submitClaims("editor1"))
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"editor1"}, project.Editors)
}

func submittedFixture(approvers ...string) *approvalFixture {
	f := newApprovalFixture(nil)
	project := f.projects.projects["proj-1"]
	submitter := "editor1"
	now := time.Now().UTC()
	project.Status = models.StatusSubmitted
	project.Approvers = approvers
	project.Submitter = &submitter
	project.SubmittedAt = &now
	return f
}

func TestApproveRequiresListedApprover(t *testing.T) {
	f := submittedFixture("rev1", "rev2")
	_, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("stranger"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApproveRejectsSubmitter(t *testing.T) {
	f := submittedFixture("rev1", "rev2")
	_, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("editor1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApproveRejectsDoubleApproval(t *testing.T) {
	f := submittedFixture("rev1", "rev2")
	f.projects.projects["proj-1"].ApprovedBy = pq.StringArray{"rev1"}
	_, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("rev1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApprovePartialQuorumStaysSubmitted(t *testing.T) {
	f := submittedFixture("rev1", "rev2")
	project, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("rev1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, project.Status)
	assert.Equal(t, pq.StringArray{"rev1"}, project.ApprovedBy)
	assert.Empty(t, f.history.entries)
	assert.Zero(t, f.notifier.approved)
}

func TestApproveFullQuorumMergesIntoMaster(t *testing.T) {
	f := submittedFixture("rev1")
	z := 700.0
	f.devices.devices["dev-1"] = models.Device{
		ID: "dev-1", ProjectID: "proj-1", FC: "AT1L0-GAS",
		State: models.StateConceptual, NomLocZ: &z,
		Discussion: models.CommentList{{ID: "c1", Author: "editor1", Comment: "check this"}},
	}
	f.snapshots.latest["proj-1"] = &models.Snapshot{ID: "snap-1", ProjectID: "proj-1", DeviceIDs: []string{"dev-1"}}

	project, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("rev1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, project.Status)
	assert.NotNil(t, project.ApprovedAt)

	// The merged copy lives in the master project, discussion stripped.
	require.Len(t, f.devices.inserted, 1)
	merged := f.devices.inserted[0]
	assert.Equal(t, "master-1", merged.ProjectID)
	assert.Equal(t, "AT1L0-GAS", merged.FC)
	assert.Nil(t, merged.Discussion)
	assert.NotEqual(t, "dev-1", merged.ID)

	// The master got a new snapshot pointing at the merged copy.
	require.Len(t, f.snapshots.inserted, 1)
	assert.Equal(t, "master-1", f.snapshots.inserted[0].ProjectID)
	assert.Equal(t, pq.StringArray{merged.ID}, f.snapshots.inserted[0].DeviceIDs)

	// Approval history recorded and notifications sent.
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "editor1", f.history.entries[0].Submitter)
	assert.Equal(t, "LCLS Run 42", f.history.entries[0].ProjectName)
	assert.Equal(t, 1, f.notifier.approved)
}

func TestApproveFullQuorumReplacesSameFCInMaster(t *testing.T) {
	f := submittedFixture("rev1")
	f.devices.devices["dev-1"] = models.Device{ID: "dev-1", ProjectID: "proj-1", FC: "AT1L0-GAS", State: models.StatePlanned}
	f.devices.devices["m-old"] = models.Device{ID: "m-old", ProjectID: "master-1", FC: "AT1L0-GAS", State: models.StateConceptual}
	f.devices.devices["m-keep"] = models.Device{ID: "m-keep", ProjectID: "master-1", FC: "MR1K1-BEND", State: models.StateConceptual}
	f.snapshots.latest["proj-1"] = &models.Snapshot{ProjectID: "proj-1", DeviceIDs: []string{"dev-1"}}
	f.snapshots.latest["master-1"] = &models.Snapshot{ProjectID: "master-1", DeviceIDs: []string{"m-old", "m-keep"}}

	_, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("rev1"))
	require.NoError(t, err)

	require.Len(t, f.snapshots.inserted, 1)
	ids := f.snapshots.inserted[0].DeviceIDs
	require.Len(t, ids, 2)
	assert.Contains(t, ids, "m-keep")
	assert.NotContains(t, ids, "m-old", "same-fc master device must be replaced")
}

func TestApproveOnDevelopmentProjectFails(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Approve(context.Background(), "proj-1", submitClaims("rev1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestRejectReturnsProjectToDevelopment(t *testing.T) {
	f := submittedFixture("rev1", "rev2")
	f.projects.projects["proj-1"].ApprovedBy = pq.StringArray{"rev1"}

	project, err := f.svc.Reject(context.Background(), "proj-1",
		dto.RejectProjectRequest{Reason: "beamline positions look wrong"}, submitClaims("rev2"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusDevelopment, project.Status)
	assert.Empty(t, project.ApprovedBy)
	assert.Nil(t, project.Submitter)
	assert.Nil(t, project.SubmittedAt)
	require.NotEmpty(t, project.Notes)
	assert.Contains(t, project.Notes[0], "rev2")
	assert.Contains(t, project.Notes[0], "beamline positions look wrong")
	assert.Equal(t, 1, f.notifier.rejected)
}

func TestRejectRequiresApprover(t *testing.T) {
	f := submittedFixture("rev1")
	_, err := f.svc.Reject(context.Background(), "proj-1",
		dto.RejectProjectRequest{Reason: "nope"}, submitClaims("stranger"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitOnMasterProjectFails(t *testing.T) {
	f := newApprovalFixture(nil)
	_, err := f.svc.Submit(context.Background(), "master-1",
		dto.SubmitProjectRequest{Approvers: []string{"rev1"}}, submitClaims("editor1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
