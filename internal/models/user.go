package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the privilege roles recognised by the console.
type UserRole string

const (
	// RoleAdmin may see and edit every project and hard-delete projects.
	RoleAdmin UserRole = "admin"
	// RoleSuperApprover is automatically added to every submission's
	// approver list and may never own or edit a project.
	RoleSuperApprover UserRole = "superapprover"
	// RoleApprover may be assigned as a project approver.
	RoleApprover UserRole = "approver"
	// RoleEditor may be assigned as a project editor.
	RoleEditor UserRole = "editor"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string         `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	FullName     string         `db:"full_name" json:"full_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	Active       bool           `db:"active" json:"active"`
	LastLogin    *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role UserRole) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if UserRole(r) == role {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
