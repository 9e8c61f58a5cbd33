package dto

import (
	"time"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

// CreateProjectRequest creates a fresh, empty project in development.
type CreateProjectRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Editors     []string `json:"editors" validate:"dive,min=1"`
	Approvers   []string `json:"approvers" validate:"dive,min=1"`
}

// CloneProjectRequest derives a new project from an existing one, carrying
// over the source's current device set.
type CloneProjectRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Editors     []string `json:"editors" validate:"dive,min=1"`
	Approvers   []string `json:"approvers" validate:"dive,min=1"`
}

// UpdateProjectRequest edits project metadata. Nil fields are untouched.
type UpdateProjectRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Editors     []string `json:"editors,omitempty" validate:"omitempty,dive,min=1"`
}

// SubmitProjectRequest moves a project into the submitted state with the
// given approver list. Super-approvers are added server-side, so the list
// may arrive empty; the service rejects it only when it is still empty
// after that union.
type SubmitProjectRequest struct {
	Approvers []string `json:"approvers" validate:"dive,min=1"`
}

// RejectProjectRequest returns a submitted project to development.
type RejectProjectRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=2000"`
}

// CopyDevicesRequest copies the named devices from another project into
// this one, replacing any same-identity devices already present.
type CopyDevicesRequest struct {
	FromProjectID string   `json:"from_project_id" validate:"required"`
	DeviceIDs     []string `json:"device_ids" validate:"required,min=1,dive,min=1"`
}

// AddCommentRequest appends one discussion entry to a device.
type AddCommentRequest struct {
	Comment string `json:"comment" validate:"required,min=1,max=5000"`
}

// CreateTagRequest names the project's content as of a moment in time. A
// zero AsOf tags the current moment.
type CreateTagRequest struct {
	Name string   `json:"name" validate:"required,min=1,max=100"`
	AsOf WireTime `json:"as_of"`
}

// DiffQuery selects the comparison target and scope for a project diff.
type DiffQuery struct {
	OtherID      string `form:"with" validate:"required"`
	ApprovedOnly bool   `form:"approved_only"`
}

// ProjectResponse is the wire shape of a project.
type ProjectResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       string     `json:"owner"`
	Status      string     `json:"status"`
	Editors     []string   `json:"editors"`
	Approvers   []string   `json:"approvers"`
	ApprovedBy  []string   `json:"approved_by"`
	Notes       []string   `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	IsMaster    bool       `json:"is_master"`
}

// EncodeProject renders a project in wire form.
func EncodeProject(p *models.Project, isMaster bool) ProjectResponse {
	if p == nil {
		return ProjectResponse{}
	}
	resp := ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Owner:       p.Owner,
		Status:      string(p.Status),
		Editors:     emptyIfNil(p.Editors),
		Approvers:   emptyIfNil(p.Approvers),
		ApprovedBy:  emptyIfNil(p.ApprovedBy),
		Notes:       emptyIfNil(p.Notes),
		CreatedAt:   p.CreatedAt,
		EditedAt:    p.EditedAt,
		SubmittedAt: p.SubmittedAt,
		ApprovedAt:  p.ApprovedAt,
		IsMaster:    isMaster,
	}
	return resp
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// StateResponse is one device lifecycle state in wire form, in lifecycle
// order.
type StateResponse struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// EncodeStates renders the full lifecycle state table.
func EncodeStates() []StateResponse {
	states := models.DeviceStates()
	out := make([]StateResponse, 0, len(states))
	for _, s := range states {
		out = append(out, StateResponse{
			Name:        string(s),
			Label:       s.Label(),
			Description: s.Description(),
			SortOrder:   s.SortOrder(),
		})
	}
	return out
}
