package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

type projectService interface {
	List(ctx context.Context, claims *models.JWTClaims, includeHidden bool) ([]models.Project, error)
	ListPendingApproval(ctx context.Context, claims *models.JWTClaims) ([]models.Project, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Project, error)
	GetMaster(ctx context.Context) (*models.Project, error)
	Create(ctx context.Context, req dto.CreateProjectRequest, claims *models.JWTClaims) (*models.Project, error)
	Clone(ctx context.Context, sourceID string, req dto.CloneProjectRequest, claims *models.JWTClaims) (*models.Project, error)
	Update(ctx context.Context, id string, req dto.UpdateProjectRequest, claims *models.JWTClaims) (*models.Project, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	IsMaster(p *models.Project) bool
}

// ProjectHandler exposes project lifecycle endpoints.
type ProjectHandler struct {
	service projectService
}

// NewProjectHandler builds a new handler.
func NewProjectHandler(service projectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// List godoc
// @Summary List projects visible to the caller
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param include_hidden query bool false "Include hidden projects (admin only)"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	includeHidden := c.Query("include_hidden") == "true"
	projects, err := h.service.List(c.Request.Context(), claimsFromContext(c), includeHidden)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, dto.EncodeProject(&projects[i], h.service.IsMaster(&projects[i])))
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Pending godoc
// @Summary List submitted projects waiting on the caller's approval
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /projects/pending [get]
func (h *ProjectHandler) Pending(c *gin.Context) {
	projects, err := h.service.ListPendingApproval(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, dto.EncodeProject(&projects[i], false))
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Get godoc
// @Summary Get one project
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, h.service.IsMaster(project)), nil)
}

// GetMaster godoc
// @Summary Get the master project holding the approved configuration
// @Tags Projects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /projects/master [get]
func (h *ProjectHandler) GetMaster(c *gin.Context) {
	project, err := h.service.GetMaster(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, true), nil)
}

// Create godoc
// @Summary Create an empty project in development
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}
	project, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.EncodeProject(project, false))
}

// Clone godoc
// @Summary Clone a project including its current devices
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Source project id"
// @Param payload body dto.CloneProjectRequest true "Clone payload"
// @Success 201 {object} response.Envelope
// @Router /projects/{id}/clone [post]
func (h *ProjectHandler) Clone(c *gin.Context) {
	var req dto.CloneProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clone payload"))
		return
	}
	project, err := h.service.Clone(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.EncodeProject(project, false))
}

// Update godoc
// @Summary Update project metadata
// @Tags Projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body dto.UpdateProjectRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [patch]
func (h *ProjectHandler) Update(c *gin.Context) {
	var req dto.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}
	project, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, false), nil)
}

// Delete godoc
// @Summary Delete a project (owners hide, admins remove)
// @Tags Projects
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 204
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
