package models

import (
	"time"

	"github.com/lib/pq"
)

// ProjectStatus captures the approval lifecycle of a project.
type ProjectStatus string

const (
	StatusDevelopment ProjectStatus = "development"
	StatusSubmitted   ProjectStatus = "submitted"
	StatusApproved    ProjectStatus = "approved"
	// StatusHidden marks a project soft-deleted by its owner. Hidden
	// projects never show up in listings for non-admin users.
	StatusHidden ProjectStatus = "hidden"
)

// Project is a versioned, ownable collection of device records moving
// through a development -> submitted -> approved lifecycle. Exactly one
// project in the system holds the master role; it is visible system-wide
// once approved.
type Project struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Owner       string         `db:"owner" json:"owner"`
	Editors     pq.StringArray `db:"editors" json:"editors"`
	Approvers   pq.StringArray `db:"approvers" json:"approvers"`
	ApprovedBy  pq.StringArray `db:"approved_by" json:"approved_by"`
	Status      ProjectStatus  `db:"status" json:"status"`
	Submitter   *string        `db:"submitter" json:"submitter,omitempty"`
	Notes       pq.StringArray `db:"notes" json:"notes"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	SubmittedAt *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time     `db:"approved_at" json:"approved_at,omitempty"`

	// EditedAt is derived from the newest snapshot, not stored on the row;
	// queries that surface it select it as a computed column.
	EditedAt *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}

// IsInDevelopment reports whether the project is editable by its owner and
// editors. Total over nil projects.
func (p *Project) IsInDevelopment() bool {
	return p != nil && p.Status == StatusDevelopment
}

// IsSubmitted reports whether the project is awaiting approval.
func (p *Project) IsSubmitted() bool {
	return p != nil && p.Status == StatusSubmitted
}

// IsApproved reports whether the project has been fully approved.
func (p *Project) IsApproved() bool {
	return p != nil && p.Status == StatusApproved
}

// IsHidden reports whether the project was soft-deleted by its owner.
func (p *Project) IsHidden() bool {
	return p != nil && p.Status == StatusHidden
}

// IsEditor reports whether username owns the project or appears in its
// editor set. An empty username never matches: anonymous callers hold no
// edit rights regardless of project state.
func (p *Project) IsEditor(username string) bool {
	if p == nil || username == "" {
		return false
	}
	if username == p.Owner {
		return true
	}
	for _, editor := range p.Editors {
		if editor == username {
			return true
		}
	}
	return false
}

// IsApprover reports whether username may approve the project. Approver
// sets are only meaningful while the project is submitted; any other status
// yields false. An empty username never matches.
func (p *Project) IsApprover(username string) bool {
	if p == nil || username == "" || p.Status != StatusSubmitted {
		return false
	}
	for _, approver := range p.Approvers {
		if approver == username {
			return true
		}
	}
	return false
}

// HasApproved reports whether username already recorded an approval.
func (p *Project) HasApproved(username string) bool {
	if p == nil || username == "" {
		return false
	}
	for _, approver := range p.ApprovedBy {
		if approver == username {
			return true
		}
	}
	return false
}

// AllApproversApproved reports whether every assigned approver has signed
// off. False when no approvers are assigned.
func (p *Project) AllApproversApproved() bool {
	if p == nil || len(p.Approvers) == 0 {
		return false
	}
	approved := make(map[string]struct{}, len(p.ApprovedBy))
	for _, a := range p.ApprovedBy {
		approved[a] = struct{}{}
	}
	for _, a := range p.Approvers {
		if _, ok := approved[a]; !ok {
			return false
		}
	}
	return true
}

// ProjectFilter constrains project listing queries.
type ProjectFilter struct {
	// Username scopes results to projects the user owns, edits or
	// approves. Ignored when IsAdmin is set.
	Username string
	// MasterName, when set, always includes the project carrying that
	// name regardless of the username scope.
	MasterName    string
	IsAdmin       bool
	IncludeHidden bool
	Status        ProjectStatus
}
