package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

type userService interface {
	List(ctx context.Context) ([]models.UserInfo, error)
	EligibleApprovers(ctx context.Context) ([]string, error)
	EligibleEditors(ctx context.Context) ([]string, error)
}

// UserHandler serves user directory listings.
type UserHandler struct {
	service userService
}

// NewUserHandler builds a new handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// List godoc
// @Summary List active users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// Approvers godoc
// @Summary List usernames eligible as project approvers
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /users/approvers [get]
func (h *UserHandler) Approvers(c *gin.Context) {
	names, err := h.service.EligibleApprovers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, names, nil)
}

// Editors godoc
// @Summary List usernames eligible as project editors
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /users/editors [get]
func (h *UserHandler) Editors(c *gin.Context) {
	names, err := h.service.EligibleEditors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, names, nil)
}
