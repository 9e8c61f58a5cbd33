package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type historyStore interface {
	ListChanges(ctx context.Context, projectID string, limit int) ([]models.ChangeEntry, error)
	ListDeviceChanges(ctx context.Context, projectID, fc string, limit int) ([]models.ChangeEntry, error)
	ListApprovals(ctx context.Context, limit int) ([]models.ApprovalEntry, error)
}

// HistoryService exposes the read side of the write-once logs: the device
// change log and the approval history.
type HistoryService struct {
	projects projectReader
	history  historyStore
	logger   *zap.Logger
}

// NewHistoryService builds a HistoryService.
func NewHistoryService(projects projectReader, history historyStore, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{projects: projects, history: history, logger: logger}
}

// Changes returns the change log of a project, newest first.
func (s *HistoryService) Changes(ctx context.Context, projectID string, limit int, claims *models.JWTClaims) ([]models.ChangeEntry, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListChanges(ctx, projectID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list changes")
	}
	return entries, nil
}

// DeviceChanges returns the change log of one device, across all its
// revisions in the project, newest first.
func (s *HistoryService) DeviceChanges(ctx context.Context, projectID, fc string, limit int, claims *models.JWTClaims) ([]models.ChangeEntry, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if fc == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "device fc is required")
	}
	if err := s.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListDeviceChanges(ctx, projectID, fc, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list device changes")
	}
	return entries, nil
}

// Approvals returns the approval history, newest first.
func (s *HistoryService) Approvals(ctx context.Context, limit int, claims *models.JWTClaims) ([]models.ApprovalEntry, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entries, err := s.history.ListApprovals(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return entries, nil
}

func (s *HistoryService) ensureProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "project id is required")
	}
	if _, err := s.projects.FindByID(ctx, projectID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return nil
}
