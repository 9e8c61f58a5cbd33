package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type userDirectory interface {
	ListActive(ctx context.Context) ([]models.User, error)
	ListUsernamesByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

// UserService serves the user listings the project forms need: everyone,
// eligible approvers and eligible editors.
type UserService struct {
	users  userDirectory
	logger *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(users userDirectory, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// List returns every active user's public profile.
func (s *UserService) List(ctx context.Context) ([]models.UserInfo, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, models.UserInfo{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			FullName: u.FullName,
			Roles:    u.Roles,
		})
	}
	return infos, nil
}

// EligibleApprovers returns the usernames that may be assigned as project
// approvers: holders of the approver role plus the super approvers.
func (s *UserService) EligibleApprovers(ctx context.Context) ([]string, error) {
	approvers, err := s.users.ListUsernamesByRole(ctx, models.RoleApprover)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvers")
	}
	supers, err := s.users.ListUsernamesByRole(ctx, models.RoleSuperApprover)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list super approvers")
	}
	return unionSorted(approvers, supers), nil
}

// EligibleEditors returns the usernames that may be assigned as project
// editors. Super approvers are excluded even when they also carry the
// editor role.
func (s *UserService) EligibleEditors(ctx context.Context) ([]string, error) {
	editors, err := s.users.ListUsernamesByRole(ctx, models.RoleEditor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list editors")
	}
	supers, err := s.users.ListUsernamesByRole(ctx, models.RoleSuperApprover)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list super approvers")
	}
	banned := make(map[string]struct{}, len(supers))
	for _, name := range supers {
		banned[name] = struct{}{}
	}
	out := make([]string, 0, len(editors))
	for _, name := range editors {
		if _, ok := banned[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func unionSorted(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
