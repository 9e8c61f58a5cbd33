package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

const projectResource = "project"

type projectStore interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id string) (*models.Project, error)
	FindByName(ctx context.Context, name string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	SetStatus(ctx context.Context, id string, status models.ProjectStatus) error
	Delete(ctx context.Context, id string) error
	ListPendingApproval(ctx context.Context, username string) ([]models.Project, error)
}

type snapshotReader interface {
	Latest(ctx context.Context, projectID string) (*models.Snapshot, error)
	LatestAsOf(ctx context.Context, projectID string, asOf time.Time) (*models.Snapshot, error)
}

type snapshotWriter interface {
	snapshotReader
	Insert(ctx context.Context, snapshot *models.Snapshot) error
}

type deviceReader interface {
	FindByID(ctx context.Context, id string) (*models.Device, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Device, error)
}

type deviceWriter interface {
	deviceReader
	Insert(ctx context.Context, device *models.Device) error
	InsertBatch(ctx context.Context, devices []*models.Device) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProjectService orchestrates project lifecycle outside of the approval
// workflow: creation, cloning, metadata edits and deletion.
type ProjectService struct {
	projects   projectStore
	snapshots  snapshotWriter
	devices    deviceWriter
	roles      roleDirectory
	audit      auditLogger
	masterName string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProjectService builds a ProjectService with sane defaults.
func NewProjectService(
	projects projectStore,
	snapshots snapshotWriter,
	devices deviceWriter,
	roles roleDirectory,
	audit auditLogger,
	masterName string,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		projects:   projects,
		snapshots:  snapshots,
		devices:    devices,
		roles:      roles,
		audit:      audit,
		masterName: masterName,
		validator:  validate,
		logger:     logger,
	}
}

// MasterName returns the reserved name of the master project.
func (s *ProjectService) MasterName() string {
	return s.masterName
}

// IsMaster reports whether the project carries the master role.
func (s *ProjectService) IsMaster(p *models.Project) bool {
	return p != nil && p.Name == s.masterName
}

// EnsureMaster bootstraps the master project when the system starts with an
// empty database. The master is born approved and owned by nobody; content
// only ever reaches it through the approval workflow.
func (s *ProjectService) EnsureMaster(ctx context.Context) (*models.Project, error) {
	master, err := s.projects.FindByName(ctx, s.masterName)
	if err == nil {
		return master, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master project")
	}

	now := time.Now().UTC()
	master = &models.Project{
		Name:        s.masterName,
		Description: "The approved machine configuration.",
		Owner:       "system",
		Status:      models.StatusApproved,
		Editors:     pq.StringArray{},
		Approvers:   pq.StringArray{},
		ApprovedBy:  pq.StringArray{},
		Notes:       pq.StringArray{},
		ApprovedAt:  &now,
	}
	if err := s.projects.Create(ctx, master); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bootstrap master project")
	}
	s.logger.Info("bootstrapped master project", zap.String("project_id", master.ID))
	return master, nil
}

// GetMaster returns the master project.
func (s *ProjectService) GetMaster(ctx context.Context) (*models.Project, error) {
	master, err := s.projects.FindByName(ctx, s.masterName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "master project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master project")
	}
	return master, nil
}

// List returns the projects visible to the caller, newest first. Admins see
// everything; other users see projects they own, edit or approve, plus the
// master project.
func (s *ProjectService) List(ctx context.Context, claims *models.JWTClaims, includeHidden bool) ([]models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ProjectFilter{
		Username:   claims.Username,
		MasterName: s.masterName,
		IsAdmin:    claims.IsAdmin(),
	}
	if includeHidden && claims.IsAdmin() {
		filter.IncludeHidden = true
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

// ListPendingApproval returns the submitted projects still waiting on the
// caller's approval, oldest submission first. Projects the caller already
// signed off on are excluded.
func (s *ProjectService) ListPendingApproval(ctx context.Context, claims *models.JWTClaims) ([]models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	projects, err := s.projects.ListPendingApproval(ctx, claims.Username)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending approvals")
	}
	pending := make([]models.Project, 0, len(projects))
	for i := range projects {
		if projects[i].HasApproved(claims.Username) {
			continue
		}
		pending = append(pending, projects[i])
	}
	return pending, nil
}

// Get returns one project the caller may see.
func (s *ProjectService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(project, claims) {
		return nil, appErrors.ErrForbidden
	}
	return project, nil
}

// Create makes a new, empty project in development owned by the caller.
func (s *ProjectService) Create(ctx context.Context, req dto.CreateProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	if req.Name == s.masterName {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q is a reserved project name", s.masterName))
	}
	if err := s.ensureNameFree(ctx, req.Name); err != nil {
		return nil, err
	}

	editors := dedupe(req.Editors)
	if err := s.ensureNotSuperApprovers(ctx, claims.Username, editors); err != nil {
		return nil, err
	}

	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		Owner:       claims.Username,
		Editors:     editors,
		Approvers:   dedupe(req.Approvers),
		ApprovedBy:  pq.StringArray{},
		Notes:       pq.StringArray{},
		Status:      models.StatusDevelopment,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}

	s.emitAudit(ctx, claims, models.AuditActionProjectCreate, project.ID, nil, project)
	return project, nil
}

// Clone derives a new project from an existing one, copying its current
// device set. The clone starts in development regardless of the source's
// status, so approved content can be taken up for further editing.
func (s *ProjectService) Clone(ctx context.Context, sourceID string, req dto.CloneProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	if req.Name == s.masterName {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q is a reserved project name", s.masterName))
	}

	source, err := s.load(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !s.canView(source, claims) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.ensureNameFree(ctx, req.Name); err != nil {
		return nil, err
	}

	editors := dedupe(req.Editors)
	if err := s.ensureNotSuperApprovers(ctx, claims.Username, editors); err != nil {
		return nil, err
	}

	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		Owner:       claims.Username,
		Editors:     editors,
		Approvers:   dedupe(req.Approvers),
		ApprovedBy:  pq.StringArray{},
		Notes:       pq.StringArray{},
		Status:      models.StatusDevelopment,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}

	if err := s.copyContent(ctx, source.ID, project.ID, claims.Username); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, claims, models.AuditActionProjectClone, project.ID, source, project)
	return project, nil
}

// Update edits project metadata. Only the owner and editors may update, and
// only while the project is in development. The master project's metadata
// is immutable.
func (s *ProjectService) Update(ctx context.Context, id string, req dto.UpdateProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.IsMaster(project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the master project cannot be edited")
	}
	if !claims.IsAdmin() && !project.IsEditor(claims.Username) {
		return nil, appErrors.ErrForbidden
	}
	if !project.IsInDevelopment() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "project can only be edited while in development")
	}

	if req.Name != nil && *req.Name != project.Name {
		if *req.Name == s.masterName {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q is a reserved project name", s.masterName))
		}
		if err := s.ensureNameFree(ctx, *req.Name); err != nil {
			return nil, err
		}
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Editors != nil {
		editors := dedupe(req.Editors)
		if err := s.ensureNotSuperApprovers(ctx, "", editors); err != nil {
			return nil, err
		}
		project.Editors = editors
	}

	if err := s.projects.Update(ctx, project); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}

	s.emitAudit(ctx, claims, models.AuditActionProjectUpdate, project.ID, nil, project)
	return project, nil
}

// Delete removes a project. Owners soft-delete: the project is hidden but
// its history stays. Admins delete the row outright; device revisions and
// change entries survive even then.
func (s *ProjectService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	project, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if s.IsMaster(project) {
		return appErrors.Clone(appErrors.ErrForbidden, "the master project cannot be deleted")
	}

	switch {
	case claims.IsAdmin():
		if err := s.projects.Delete(ctx, id); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "project not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
		}
	case project.Owner == claims.Username:
		if err := s.projects.SetStatus(ctx, id, models.StatusHidden); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "project not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hide project")
		}
	default:
		return appErrors.ErrForbidden
	}

	s.emitAudit(ctx, claims, models.AuditActionProjectDelete, id, project, nil)
	return nil
}

func (s *ProjectService) load(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "project id is required")
	}
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

func (s *ProjectService) canView(p *models.Project, claims *models.JWTClaims) bool {
	if claims.IsAdmin() || s.IsMaster(p) {
		return true
	}
	if p.IsHidden() {
		return false
	}
	if p.IsEditor(claims.Username) || p.HasApproved(claims.Username) {
		return true
	}
	for _, approver := range p.Approvers {
		if approver == claims.Username {
			return true
		}
	}
	return p.IsApproved()
}

// copyContent clones the source's current device set into the destination
// project and writes its first snapshot.
func (s *ProjectService) copyContent(ctx context.Context, sourceID, destID, author string) error {
	snapshot, err := s.snapshots.Latest(ctx, sourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source snapshot")
	}
	if len(snapshot.DeviceIDs) == 0 {
		return nil
	}

	devices, err := s.devices.FindByIDs(ctx, snapshot.DeviceIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source devices")
	}

	clones := make([]*models.Device, 0, len(devices))
	ids := make(pq.StringArray, 0, len(devices))
	for i := range devices {
		clone := devices[i].Clone()
		clone.ID = ""
		clone.ProjectID = destID
		clone.CreatedAt = time.Time{}
		clones = append(clones, clone)
	}
	if err := s.devices.InsertBatch(ctx, clones); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy devices")
	}
	for _, clone := range clones {
		ids = append(ids, clone.ID)
	}

	if err := s.snapshots.Insert(ctx, &models.Snapshot{ProjectID: destID, Author: author, DeviceIDs: ids}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot cloned project")
	}
	return nil
}

// ensureNotSuperApprovers rejects owner/editor assignments for users holding
// the super-approver role: they sit on every submission's approver list and
// must stay out of the editing side.
func (s *ProjectService) ensureNotSuperApprovers(ctx context.Context, owner string, editors []string) error {
	if s.roles == nil {
		return nil
	}
	supers, err := s.roles.ListUsernamesByRole(ctx, models.RoleSuperApprover)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load super-approvers")
	}
	banned := make(map[string]struct{}, len(supers))
	for _, name := range supers {
		banned[name] = struct{}{}
	}
	if owner != "" {
		if _, ok := banned[owner]; ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("super-approver %q may not own a project", owner))
		}
	}
	for _, editor := range editors {
		if _, ok := banned[editor]; ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("super-approver %q may not edit a project", editor))
		}
	}
	return nil
}

func (s *ProjectService) ensureNameFree(ctx context.Context, name string) error {
	if _, err := s.projects.FindByName(ctx, name); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a project named %q already exists", name))
	} else if err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check project name")
	}
	return nil
}

func (s *ProjectService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil {
		return
	}
	var oldValues, newValues []byte
	if oldValue != nil {
		oldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newValues, _ = json.Marshal(newValue)
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   projectResource,
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "project-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record project audit", zap.Error(err))
	}
}

// dedupe returns the list with duplicates and empty entries removed,
// preserving first-seen order.
func dedupe(list []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
