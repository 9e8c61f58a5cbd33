package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsApproverOnlyMatchesSubmittedProjects(t *testing.T) {
	p := &Project{Status: StatusDevelopment, Approvers: []string{"rev1"}}
	assert.False(t, p.IsApprover("rev1"))

	p.Status = StatusSubmitted
	assert.True(t, p.IsApprover("rev1"))
	assert.False(t, p.IsApprover("rev2"))
	assert.False(t, p.IsApprover(""))

	p.Status = StatusApproved
	assert.False(t, p.IsApprover("rev1"))
}

func TestPredicatesAreTotalOverNil(t *testing.T) {
	var p *Project
	assert.False(t, p.IsInDevelopment())
	assert.False(t, p.IsSubmitted())
	assert.False(t, p.IsApproved())
	assert.False(t, p.IsHidden())
	assert.False(t, p.IsEditor("jdoe"))
	assert.False(t, p.IsApprover("jdoe"))
	assert.False(t, p.HasApproved("jdoe"))
	assert.False(t, p.AllApproversApproved())
}

func TestIsEditorMatchesOwnerAndEditors(t *testing.T) {
	p := &Project{Owner: "jdoe", Editors: []string{"editor1"}}
	assert.True(t, p.IsEditor("jdoe"))
	assert.True(t, p.IsEditor("editor1"))
	assert.False(t, p.IsEditor("stranger"))
	assert.False(t, p.IsEditor(""))
}

func TestAllApproversApprovedNeedsEveryVote(t *testing.T) {
	p := &Project{Approvers: []string{"rev1", "rev2"}, ApprovedBy: []string{"rev1"}}
	assert.False(t, p.AllApproversApproved())

	p.ApprovedBy = []string{"rev1", "rev2"}
	assert.True(t, p.AllApproversApproved())

	empty := &Project{}
	assert.False(t, empty.AllApproversApproved())
}
