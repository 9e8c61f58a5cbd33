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

type approvalService interface {
	Submit(ctx context.Context, projectID string, req dto.SubmitProjectRequest, claims *models.JWTClaims) (*models.Project, error)
	Approve(ctx context.Context, projectID string, claims *models.JWTClaims) (*models.Project, error)
	Reject(ctx context.Context, projectID string, req dto.RejectProjectRequest, claims *models.JWTClaims) (*models.Project, error)
}

type workflowRecorder interface {
	RecordWorkflowTransition(transition string)
}

// ApprovalHandler exposes the submit/approve/reject workflow endpoints.
type ApprovalHandler struct {
	service approvalService
	metrics workflowRecorder
}

// NewApprovalHandler builds a new handler.
func NewApprovalHandler(service approvalService, metrics workflowRecorder) *ApprovalHandler {
	return &ApprovalHandler{service: service, metrics: metrics}
}

// Submit godoc
// @Summary Submit a project for approval
// @Tags Approval
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body dto.SubmitProjectRequest true "Approver list"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/submit [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req dto.SubmitProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	project, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.record("submit")
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, false), nil)
}

// Approve godoc
// @Summary Record the caller's approval
// @Tags Approval
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	project, err := h.service.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if project.IsApproved() {
		h.record("approve")
	}
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, false), nil)
}

// Reject godoc
// @Summary Reject a submission and return the project to development
// @Tags Approval
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project id"
// @Param payload body dto.RejectProjectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req dto.RejectProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "a rejection reason is required"))
		return
	}
	project, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.record("reject")
	response.JSON(c, http.StatusOK, dto.EncodeProject(project, false), nil)
}

func (h *ApprovalHandler) record(transition string) {
	if h.metrics != nil {
		h.metrics.RecordWorkflowTransition(transition)
	}
}
