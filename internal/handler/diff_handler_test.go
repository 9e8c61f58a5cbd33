package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

type diffServiceMock struct {
	otherID      string
	approvedOnly bool
}

func (m *diffServiceMock) Diff(ctx context.Context, projectID, otherID string, approvedOnly bool, claims *models.JWTClaims) (*models.ProjectDiff, error) {
	m.otherID = otherID
	m.approvedOnly = approvedOnly
	return &models.ProjectDiff{ProjectID: projectID, OtherID: otherID}, nil
}

func TestDiffHandlerRequiresWithParameter(t *testing.T) {
	h := NewDiffHandler(&diffServiceMock{}, nil)

	c, w := testContext(t, http.MethodGet, "/projects/p1/diff", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "jdoe")
	h.Diff(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiffHandlerBindsQuery(t *testing.T) {
	mock := &diffServiceMock{}
	h := NewDiffHandler(mock, nil)

	c, w := testContext(t, http.MethodGet, "/projects/p1/diff?with=p2&approved_only=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "jdoe")
	h.Diff(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p2", mock.otherID)
	assert.True(t, mock.approvedOnly)
}
