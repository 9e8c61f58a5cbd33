package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type approvalProjectStore interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
	FindByName(ctx context.Context, name string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	UpdateWorkflow(ctx context.Context, project *models.Project) error
}

type roleDirectory interface {
	ListUsernamesByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

type approvalHistoryWriter interface {
	InsertApproval(ctx context.Context, entry *models.ApprovalEntry) error
}

// Notifier delivers workflow notifications. Implementations must not
// block; delivery failures are the notifier's problem, never the
// workflow's.
type Notifier interface {
	ProjectSubmitted(ctx context.Context, project *models.Project, approvers []string)
	ProjectApproved(ctx context.Context, project *models.Project)
	ProjectRejected(ctx context.Context, project *models.Project, reason, actor string)
}

// ApprovalService drives the development -> submitted -> approved workflow,
// including the merge of fully approved content into the master project.
type ApprovalService struct {
	projects   approvalProjectStore
	snapshots  snapshotWriter
	devices    deviceWriter
	history    approvalHistoryWriter
	users      roleDirectory
	cache      cacheInvalidator
	audit      auditLogger
	notifier   Notifier
	masterName string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewApprovalService builds an ApprovalService with sane defaults.
func NewApprovalService(
	projects approvalProjectStore,
	snapshots snapshotWriter,
	devices deviceWriter,
	history approvalHistoryWriter,
	users roleDirectory,
	cache cacheInvalidator,
	audit auditLogger,
	notifier Notifier,
	masterName string,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		projects:   projects,
		snapshots:  snapshots,
		devices:    devices,
		history:    history,
		users:      users,
		cache:      cache,
		audit:      audit,
		notifier:   notifier,
		masterName: masterName,
		validator:  validate,
		logger:     logger,
	}
}

// Submit moves a project into the submitted state with the given approver
// list. Submitting again while already submitted replaces the approver
// list; approvals from approvers who stay on the list are kept.
//
// The caller becomes the submitter and may not appear among the approvers,
// and neither may the project owner. Every super-approver is added to the
// list server-side. Users appearing in both the editor and the final
// approver set lose their editor seat for the duration.
func (s *ApprovalService) Submit(ctx context.Context, projectID string, req dto.SubmitProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Name == s.masterName {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the master project cannot be submitted")
	}
	if !claims.IsAdmin() && !project.IsEditor(claims.Username) {
		return nil, appErrors.ErrForbidden
	}
	if !project.IsInDevelopment() && !project.IsSubmitted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only projects in development or already submitted can be submitted")
	}

	approvers := dedupe(req.Approvers)
	for _, approver := range approvers {
		if approver == claims.Username {
			return nil, appErrors.Clone(appErrors.ErrValidation, "the submitter cannot be an approver")
		}
		if approver == project.Owner {
			return nil, appErrors.Clone(appErrors.ErrValidation, "the project owner cannot be an approver")
		}
	}

	supers, err := s.users.ListUsernamesByRole(ctx, models.RoleSuperApprover)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load super-approvers")
	}
	for _, super := range supers {
		if super == claims.Username || super == project.Owner {
			continue
		}
		approvers = appendUnique(approvers, super)
	}
	if len(approvers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one approver is required")
	}

	// An approver cannot hold an editor seat at the same time.
	editors := make(pq.StringArray, 0, len(project.Editors))
	approverSet := make(map[string]struct{}, len(approvers))
	for _, approver := range approvers {
		approverSet[approver] = struct{}{}
	}
	for _, editor := range project.Editors {
		if _, isApprover := approverSet[editor]; !isApprover {
			editors = append(editors, editor)
		}
	}

	// Approvals from approvers still on the list survive a resubmission.
	kept := make(pq.StringArray, 0, len(project.ApprovedBy))
	for _, username := range project.ApprovedBy {
		if _, stillListed := approverSet[username]; stillListed {
			kept = append(kept, username)
		}
	}

	now := time.Now().UTC()
	submitter := claims.Username
	project.Status = models.StatusSubmitted
	project.Approvers = approvers
	project.ApprovedBy = kept
	project.Submitter = &submitter
	project.SubmittedAt = &now
	project.Editors = editors

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update editors")
	}
	if err := s.projects.UpdateWorkflow(ctx, project); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit project")
	}

	if s.notifier != nil {
		s.notifier.ProjectSubmitted(ctx, project, approvers)
	}
	s.emitAudit(ctx, claims, models.AuditActionProjectSubmit, project)
	return project, nil
}

// Approve records the caller's approval. The final approval merges the
// project's content into the master project, stamps the project approved
// and writes the approval history entry.
func (s *ApprovalService) Approve(ctx context.Context, projectID string, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsSubmitted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only submitted projects can be approved")
	}
	if project.Submitter != nil && *project.Submitter == claims.Username {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the submitter cannot approve their own submission")
	}
	if project.Owner == claims.Username {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the project owner cannot approve their own project")
	}
	if !project.IsApprover(claims.Username) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not an approver of this project")
	}
	if project.HasApproved(claims.Username) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you have already approved this project")
	}

	project.ApprovedBy = append(project.ApprovedBy, claims.Username)

	if !project.AllApproversApproved() {
		if err := s.projects.UpdateWorkflow(ctx, project); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
		}
		s.emitAudit(ctx, claims, models.AuditActionProjectApprove, project)
		return project, nil
	}

	// Final approval: the project's content becomes the approved
	// configuration.
	if err := s.mergeIntoMaster(ctx, project); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project.Status = models.StatusApproved
	project.ApprovedAt = &now
	if err := s.projects.UpdateWorkflow(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize approval")
	}

	submitter := ""
	if project.Submitter != nil {
		submitter = *project.Submitter
	}
	entry := &models.ApprovalEntry{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		Submitter:   submitter,
		SwitchedAt:  now,
		ProjectName: project.Name,
		Description: project.Description,
		Owner:       project.Owner,
	}
	if err := s.history.InsertApproval(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval history")
	}

	if s.notifier != nil {
		s.notifier.ProjectApproved(ctx, project)
	}
	s.emitAudit(ctx, claims, models.AuditActionProjectApprove, project)
	return project, nil
}

// Reject returns a submitted project to development. The reason lands as a
// timestamped note on the project so the editors see why.
func (s *ApprovalService) Reject(ctx context.Context, projectID string, req dto.RejectProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a rejection reason is required")
	}

	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsSubmitted() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only submitted projects can be rejected")
	}
	if !claims.IsAdmin() && !project.IsApprover(claims.Username) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only an approver can reject the submission")
	}

	note := fmt.Sprintf("%s %s: %s", time.Now().UTC().Format("2006-01-02 15:04"), claims.Username, req.Reason)
	project.Status = models.StatusDevelopment
	project.Notes = append(pq.StringArray{note}, project.Notes...)
	project.ApprovedBy = pq.StringArray{}
	project.Submitter = nil
	project.SubmittedAt = nil

	if err := s.projects.UpdateWorkflow(ctx, project); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject project")
	}

	if s.notifier != nil {
		s.notifier.ProjectRejected(ctx, project, req.Reason, claims.Username)
	}
	s.emitAudit(ctx, claims, models.AuditActionProjectReject, project)
	return project, nil
}

// mergeIntoMaster copies the project's current devices into the master
// project, replacing same-fc devices. Discussion threads are stripped: the
// master carries configuration, not conversation.
func (s *ApprovalService) mergeIntoMaster(ctx context.Context, project *models.Project) error {
	master, err := s.projects.FindByName(ctx, s.masterName)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrInternal, "master project is not bootstrapped")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master project")
	}

	sourceIDs, err := s.latestDeviceIDs(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(sourceIDs) == 0 {
		// Approving an empty project is legal; the master is untouched.
		return nil
	}
	sources, err := s.devices.FindByIDs(ctx, sourceIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project devices")
	}

	masterIDs, err := s.latestDeviceIDs(ctx, master.ID)
	if err != nil {
		return err
	}
	masterDevices, err := s.devices.FindByIDs(ctx, masterIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master devices")
	}
	keepByFC := make(map[string]string, len(masterDevices))
	for i := range masterDevices {
		keepByFC[masterDevices[i].FC] = masterDevices[i].ID
	}

	merged := make([]*models.Device, 0, len(sources))
	for i := range sources {
		clone := sources[i].Clone()
		clone.ID = uuid.NewString()
		clone.ProjectID = master.ID
		clone.Discussion = nil
		clone.CreatedAt = time.Now().UTC()
		merged = append(merged, clone)
		delete(keepByFC, clone.FC)
	}
	if err := s.devices.InsertBatch(ctx, merged); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge devices into master")
	}

	next := make(pq.StringArray, 0, len(keepByFC)+len(merged))
	for _, id := range keepByFC {
		next = append(next, id)
	}
	for _, device := range merged {
		next = append(next, device.ID)
	}

	author := project.Owner
	if project.Submitter != nil {
		author = *project.Submitter
	}
	if err := s.snapshots.Insert(ctx, &models.Snapshot{ProjectID: master.ID, Author: author, DeviceIDs: next}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot master project")
	}
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "project:"+master.ID+":*"); err != nil {
			s.logger.Warn("failed to invalidate master cache", zap.Error(err))
		}
	}
	return nil
}

func (s *ApprovalService) latestDeviceIDs(ctx context.Context, projectID string) ([]string, error) {
	snapshot, err := s.snapshots.Latest(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	return snapshot.DeviceIDs, nil
}

func (s *ApprovalService) load(ctx context.Context, projectID string) (*models.Project, error) {
	if projectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "project id is required")
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, project *models.Project) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"status":      project.Status,
		"approvers":   project.Approvers,
		"approved_by": project.ApprovedBy,
	})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   projectResource,
		ResourceID: &project.ID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record approval audit", zap.Error(err))
	}
}

func appendUnique(list pq.StringArray, v string) pq.StringArray {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
