package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

type userDirectoryStub struct {
	users  []models.User
	byRole map[models.UserRole][]string
}

func (s *userDirectoryStub) ListActive(ctx context.Context) ([]models.User, error) {
	return s.users, nil
}

func (s *userDirectoryStub) ListUsernamesByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	return s.byRole[role], nil
}

func TestEligibleApproversIncludesSuperApprovers(t *testing.T) {
	svc := NewUserService(&userDirectoryStub{byRole: map[models.UserRole][]string{
		models.RoleApprover:      {"rev1", "rev2"},
		models.RoleSuperApprover: {"super1", "rev2"},
	}}, nil)

	names, err := svc.EligibleApprovers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rev1", "rev2", "super1"}, names)
}

func TestEligibleEditorsExcludesSuperApprovers(t *testing.T) {
	svc := NewUserService(&userDirectoryStub{byRole: map[models.UserRole][]string{
		models.RoleEditor:        {"editor1", "super1", "editor2"},
		models.RoleSuperApprover: {"super1"},
	}}, nil)

	names, err := svc.EligibleEditors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"editor1", "editor2"}, names)
}

func TestListUsersHidesPasswordHash(t *testing.T) {
	svc := NewUserService(&userDirectoryStub{users: []models.User{
		{ID: "u1", Username: "jdoe", Email: "jdoe@example.org", PasswordHash: "secret"},
	}}, nil)

	infos, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "jdoe", infos[0].Username)
}
