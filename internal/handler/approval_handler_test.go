package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type approvalServiceMock struct {
	submitReq  *dto.SubmitProjectRequest
	approveErr error
	approved   *models.Project
	rejectReq  *dto.RejectProjectRequest
}

func (m *approvalServiceMock) Submit(ctx context.Context, projectID string, req dto.SubmitProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	m.submitReq = &req
	return &models.Project{ID: projectID, Status: models.StatusSubmitted}, nil
}

func (m *approvalServiceMock) Approve(ctx context.Context, projectID string, claims *models.JWTClaims) (*models.Project, error) {
	if m.approveErr != nil {
		return nil, m.approveErr
	}
	if m.approved != nil {
		return m.approved, nil
	}
	return &models.Project{ID: projectID, Status: models.StatusSubmitted}, nil
}

func (m *approvalServiceMock) Reject(ctx context.Context, projectID string, req dto.RejectProjectRequest, claims *models.JWTClaims) (*models.Project, error) {
	m.rejectReq = &req
	return &models.Project{ID: projectID, Status: models.StatusDevelopment}, nil
}

type workflowRecorderMock struct {
	transitions []string
}

func (m *workflowRecorderMock) RecordWorkflowTransition(transition string) {
	m.transitions = append(m.transitions, transition)
}

func TestApprovalHandlerSubmit(t *testing.T) {
	mock := &approvalServiceMock{}
	recorder := &workflowRecorderMock{}
	h := NewApprovalHandler(mock, recorder)

	c, w := testContext(t, http.MethodPost, "/projects/p1/submit",
		dto.SubmitProjectRequest{Approvers: []string{"rev1"}})
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "editor1")
	h.Submit(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.submitReq)
	assert.Equal(t, []string{"rev1"}, mock.submitReq.Approvers)
	assert.Equal(t, []string{"submit"}, recorder.transitions)
}

func TestApprovalHandlerPartialApproveNotCounted(t *testing.T) {
	recorder := &workflowRecorderMock{}
	h := NewApprovalHandler(&approvalServiceMock{}, recorder)

	c, w := testContext(t, http.MethodPost, "/projects/p1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "rev1")
	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.transitions, "only the final approval counts as a transition")
}

func TestApprovalHandlerFinalApproveCounted(t *testing.T) {
	recorder := &workflowRecorderMock{}
	h := NewApprovalHandler(&approvalServiceMock{
		approved: &models.Project{ID: "p1", Status: models.StatusApproved},
	}, recorder)

	c, w := testContext(t, http.MethodPost, "/projects/p1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "rev1")
	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"approve"}, recorder.transitions)
}

func TestApprovalHandlerApproveConflict(t *testing.T) {
	h := NewApprovalHandler(&approvalServiceMock{
		approveErr: appErrors.Clone(appErrors.ErrConflict, "you have already approved this project"),
	}, nil)

	c, w := testContext(t, http.MethodPost, "/projects/p1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "rev1")
	h.Approve(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApprovalHandlerRejectInvalidBody(t *testing.T) {
	h := NewApprovalHandler(&approvalServiceMock{}, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/projects/p1/reject", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "rev1")
	h.Reject(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandlerReject(t *testing.T) {
	mock := &approvalServiceMock{}
	recorder := &workflowRecorderMock{}
	h := NewApprovalHandler(mock, recorder)

	c, w := testContext(t, http.MethodPost, "/projects/p1/reject",
		dto.RejectProjectRequest{Reason: "positions look wrong"})
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	withClaims(c, "rev1")
	h.Reject(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.rejectReq)
	assert.Equal(t, "positions look wrong", mock.rejectReq.Reason)
	assert.Equal(t, []string{"reject"}, recorder.transitions)
}
