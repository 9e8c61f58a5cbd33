package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

type historyService interface {
	Changes(ctx context.Context, projectID string, limit int, claims *models.JWTClaims) ([]models.ChangeEntry, error)
	DeviceChanges(ctx context.Context, projectID, fc string, limit int, claims *models.JWTClaims) ([]models.ChangeEntry, error)
	Approvals(ctx context.Context, limit int, claims *models.JWTClaims) ([]models.ApprovalEntry, error)
}

// HistoryHandler exposes change logs and the approval history.
type HistoryHandler struct {
	service historyService
}

// NewHistoryHandler builds a new handler.
func NewHistoryHandler(service historyService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// Changes godoc
// @Summary List the project's field-level change log, newest first
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param fc query string false "Restrict to one device fc"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/changes [get]
func (h *HistoryHandler) Changes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	claims := claimsFromContext(c)

	var (
		entries []models.ChangeEntry
		err     error
	)
	if fc := c.Query("fc"); fc != "" {
		entries, err = h.service.DeviceChanges(c.Request.Context(), c.Param("id"), fc, limit, claims)
	} else {
		entries, err = h.service.Changes(c.Request.Context(), c.Param("id"), limit, claims)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Approvals godoc
// @Summary List the global approval history, newest first
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *HistoryHandler) Approvals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := h.service.Approvals(c.Request.Context(), limit, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
