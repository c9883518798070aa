// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topluluk-service/internal/domain/auth"
	xerrors "topluluk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, name, surname, email, phone, password_hash,
	is_verified, status, leader_community_id, last_login_at, is_logged_in
`

func scanUser(row pgx.Row) (*auth.User, error) {
	var user auth.User
	var leaderCommunityID *string
	var lastLoginAt *time.Time

	err := row.Scan(
		&user.ID, &user.Name, &user.Surname, &user.Email, &user.Phone,
		&user.PasswordHash, &user.IsVerified, &user.Status,
		&leaderCommunityID, &lastLoginAt, &user.IsLoggedIn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if leaderCommunityID != nil {
		user.LeaderCommunityID = *leaderCommunityID
	}
	if lastLoginAt != nil {
		user.LastLoginAt = *lastLoginAt
	}

	return &user, nil
}

// FindByID retrieves a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// FindByEmailOrPhone retrieves a user matching either contact field.
// Email matches are case-insensitive.
func (r *UserRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*auth.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 <> '' AND LOWER(email) = LOWER($1))
		   OR ($2 <> '' AND phone = $2)
		LIMIT 1
	`
	return scanUser(r.db.QueryRow(ctx, query, email, phone))
}

// UpdateLastLogin records a successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1, is_logged_in = TRUE WHERE id = $2`
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}

// SetLoggedIn flips the logged-in marker, used on logout.
func (r *UserRepository) SetLoggedIn(ctx context.Context, id string, loggedIn bool) error {
	query := `UPDATE users SET is_logged_in = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, loggedIn, id)
	return err
}
