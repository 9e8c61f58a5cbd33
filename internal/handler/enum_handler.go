package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	"github.com/mcd-eng/mcd-console-api/pkg/response"
)

// EnumHandler serves the static vocabularies the frontend renders:
// device lifecycle states, areas and beamlines.
type EnumHandler struct{}

// NewEnumHandler builds a new handler.
func NewEnumHandler() *EnumHandler {
	return &EnumHandler{}
}

// States godoc
// @Summary List device lifecycle states in order
// @Tags Enums
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enums/states [get]
func (h *EnumHandler) States(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.EncodeStates(), nil)
}

// Areas godoc
// @Summary List known facility areas
// @Tags Enums
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enums/areas [get]
func (h *EnumHandler) Areas(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.Areas, nil)
}

// Beamlines godoc
// @Summary List known beamlines
// @Tags Enums
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enums/beamlines [get]
func (h *EnumHandler) Beamlines(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.Beamlines, nil)
}
