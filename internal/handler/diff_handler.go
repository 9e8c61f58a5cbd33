package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

type diffService interface {
	Diff(ctx context.Context, projectID, otherID string, approvedOnly bool, claims *models.JWTClaims) (*models.ProjectDiff, error)
}

type diffRecorder interface {
	ObserveDiff(duration time.Duration)
}

// DiffHandler exposes the project comparison endpoint.
type DiffHandler struct {
	service diffService
	metrics diffRecorder
}

// NewDiffHandler builds a new handler.
func NewDiffHandler(service diffService, metrics diffRecorder) *DiffHandler {
	return &DiffHandler{service: service, metrics: metrics}
}

// Diff godoc
// @Summary Compare a project against another, field by field
// @Tags Diff
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param with query string true "Other project id"
// @Param approved_only query bool false "Restrict to devices in the approved configuration"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/diff [get]
func (h *DiffHandler) Diff(c *gin.Context) {
	var query dto.DiffQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.OtherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "the with query parameter is required"))
		return
	}

	start := time.Now()
	diff, err := h.service.Diff(c.Request.Context(), c.Param("id"), query.OtherID, query.ApprovedOnly, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveDiff(time.Since(start))
	}
	response.JSON(c, http.StatusOK, diff, nil)
}
