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

type tagService interface {
	Create(ctx context.Context, projectID string, req dto.CreateTagRequest, claims *models.JWTClaims) (*models.Tag, error)
	List(ctx context.Context, projectID string, claims *models.JWTClaims) ([]models.Tag, error)
}

// TagHandler exposes named point-in-time tags on a project's history.
type TagHandler struct {
	service tagService
}

// NewTagHandler builds a new handler.
func NewTagHandler(service tagService) *TagHandler {
	return &TagHandler{service: service}
}

// Create godoc
// @Summary Tag the project's content as of a moment in time
// @Tags Tags
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body dto.CreateTagRequest true "Tag payload"
// @Success 201 {object} response.Envelope
// @Router /projects/{id}/tags [post]
func (h *TagHandler) Create(c *gin.Context) {
	var req dto.CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tag payload"))
		return
	}
	tag, err := h.service.Create(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tag)
}

// List godoc
// @Summary List the project's tags, newest first
// @Tags Tags
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/tags [get]
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.service.List(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags, nil)
}
