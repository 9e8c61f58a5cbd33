package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

const userColumns = `id, username, email, full_name, password_hash, roles, active, last_login, created_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername returns a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// ListActive returns all active users sorted by username.
func (r *UserRepository) ListActive(ctx context.Context) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE active = TRUE ORDER BY username ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// ListUsernamesByRole returns active usernames carrying the given role,
// sorted for stable assignment lists.
func (r *UserRepository) ListUsernamesByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	const query = `SELECT username FROM users WHERE $1 = ANY(roles) AND active = TRUE ORDER BY username ASC`
	var usernames []string
	if err := r.db.SelectContext(ctx, &usernames, query, string(role)); err != nil {
		return nil, fmt.Errorf("list usernames by role: %w", err)
	}
	return usernames, nil
}

// FindEmails resolves usernames to email addresses, skipping unknown and
// inactive users.
func (r *UserRepository) FindEmails(ctx context.Context, usernames []string) ([]string, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT email FROM users WHERE username IN (?) AND active = TRUE AND email <> ''`, usernames)
	if err != nil {
		return nil, fmt.Errorf("build email query: %w", err)
	}
	query = r.db.Rebind(query)
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("find emails: %w", err)
	}
	return emails, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
