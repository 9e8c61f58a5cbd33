package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type tagStore interface {
	tagReader
	Insert(ctx context.Context, tag *models.Tag) error
	ListByProject(ctx context.Context, projectID string) ([]models.Tag, error)
}

// TagService manages named timestamps on projects. A tag never moves once
// created: it pins the project content visible at its moment.
type TagService struct {
	projects  projectReader
	tags      tagStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTagService builds a TagService with sane defaults.
func NewTagService(projects projectReader, tags tagStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *TagService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagService{projects: projects, tags: tags, audit: audit, validator: validate, logger: logger}
}

// Create names the project content as of the requested moment; with no
// moment given, the tag pins the present. Tag names are unique per project.
func (s *TagService) Create(ctx context.Context, projectID string, req dto.CreateTagRequest, claims *models.JWTClaims) (*models.Tag, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tag payload")
	}

	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if !claims.IsAdmin() && !project.IsEditor(claims.Username) {
		return nil, appErrors.ErrForbidden
	}

	if _, err := s.tags.FindByName(ctx, projectID, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("tag %q already exists", req.Name))
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check tag name")
	}

	asOf := req.AsOf.Time
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	tag := &models.Tag{ProjectID: projectID, Name: req.Name, AsOf: asOf}
	if err := s.tags.Insert(ctx, tag); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tag")
	}

	if s.audit != nil {
		log := &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionTagCreate,
			Resource:   projectResource,
			ResourceID: &projectID,
			IPAddress:  "system",
			UserAgent:  "tag-service",
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to record tag audit", zap.Error(err))
		}
	}
	return tag, nil
}

// List returns the project's tags, newest moment first.
func (s *TagService) List(ctx context.Context, projectID string, claims *models.JWTClaims) ([]models.Tag, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.projects.FindByID(ctx, projectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	tags, err := s.tags.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tags")
	}
	return tags, nil
}
