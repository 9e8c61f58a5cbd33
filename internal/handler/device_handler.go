package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	"github.com/mcd-eng/mcd-console-api/internal/service"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

type deviceService interface {
	List(ctx context.Context, projectID string, query service.DeviceQuery, claims *models.JWTClaims) ([]dto.DeviceRecord, error)
	Update(ctx context.Context, projectID string, updates []dto.DeviceUpdate, claims *models.JWTClaims) ([]dto.DeviceRecord, error)
	Remove(ctx context.Context, projectID string, deviceIDs []string, claims *models.JWTClaims) error
	CopyFrom(ctx context.Context, projectID string, req dto.CopyDevicesRequest, claims *models.JWTClaims) ([]dto.DeviceRecord, error)
	AddComment(ctx context.Context, projectID, deviceID string, req dto.AddCommentRequest, claims *models.JWTClaims) (*dto.DeviceRecord, error)
	DeleteComment(ctx context.Context, projectID, deviceID string, commentIDs []string, claims *models.JWTClaims) (*dto.DeviceRecord, error)
	SearchFCs(ctx context.Context, prefix string, limit int, claims *models.JWTClaims) ([]string, error)
}

// DeviceHandler exposes the device endpoints inside a project.
type DeviceHandler struct {
	service deviceService
}

// NewDeviceHandler builds a new handler.
func NewDeviceHandler(service deviceService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// List godoc
// @Summary List the project's devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param as_of query string false "Historical moment (RFC3339)"
// @Param tag query string false "Named tag"
// @Param device_id query string false "Restrict to one device"
// @Param changed_since query string false "Only revisions after this moment (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	query := service.DeviceQuery{Tag: c.Query("tag"), DeviceID: c.Query("device_id")}
	if raw := c.Query("as_of"); raw != "" {
		asOf, err := dto.ParseWireTime(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid as_of timestamp"))
			return
		}
		query.AsOf = asOf
	}
	if raw := c.Query("changed_since"); raw != "" {
		since, err := dto.ParseWireTime(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid changed_since timestamp"))
			return
		}
		query.ChangedSince = since
	}
	records, err := h.service.List(c.Request.Context(), c.Param("id"), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Update godoc
// @Summary Apply a batch of device edits
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body []dto.DeviceUpdate true "Device updates"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/devices [post]
func (h *DeviceHandler) Update(c *gin.Context) {
	var updates []dto.DeviceUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid device payload"))
		return
	}
	records, err := h.service.Update(c.Request.Context(), c.Param("id"), updates, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

type removeDevicesRequest struct {
	DeviceIDs []string `json:"device_ids" binding:"required,min=1"`
}

// Remove godoc
// @Summary Remove devices from the project's current content
// @Tags Devices
// @Accept json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body removeDevicesRequest true "Device ids"
// @Success 204
// @Router /projects/{id}/devices/remove [post]
func (h *DeviceHandler) Remove(c *gin.Context) {
	var req removeDevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid removal payload"))
		return
	}
	if err := h.service.Remove(c.Request.Context(), c.Param("id"), req.DeviceIDs, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CopyFrom godoc
// @Summary Copy devices from another project
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Destination project id"
// @Param payload body dto.CopyDevicesRequest true "Copy payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/devices/copy [post]
func (h *DeviceHandler) CopyFrom(c *gin.Context) {
	var req dto.CopyDevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid copy payload"))
		return
	}
	records, err := h.service.CopyFrom(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// AddComment godoc
// @Summary Add a discussion comment to a device
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param deviceId path string true "Device id"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/devices/{deviceId}/comments [post]
func (h *DeviceHandler) AddComment(c *gin.Context) {
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	record, err := h.service.AddComment(c.Request.Context(), c.Param("id"), c.Param("deviceId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

type deleteCommentsRequest struct {
	CommentIDs []string `json:"comment_ids" binding:"required,min=1"`
}

// DeleteComments godoc
// @Summary Delete discussion comments from a device (admin only)
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param deviceId path string true "Device id"
// @Param payload body deleteCommentsRequest true "Comment ids"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/devices/{deviceId}/comments/delete [post]
func (h *DeviceHandler) DeleteComments(c *gin.Context) {
	var req deleteCommentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	record, err := h.service.DeleteComment(c.Request.Context(), c.Param("id"), c.Param("deviceId"), req.CommentIDs, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// SearchFCs godoc
// @Summary Autocomplete device fc identifiers
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param q query string true "Prefix"
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /devices/fcs [get]
func (h *DeviceHandler) SearchFCs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	fcs, err := h.service.SearchFCs(c.Request.Context(), c.Query("q"), limit, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fcs, nil)
}
