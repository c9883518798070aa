// internal/repository/postgres/community_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"topluluk-service/internal/domain/community"
	xerrors "topluluk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CommunityRepository struct {
	db *pgxpool.Pool
}

func NewCommunityRepository(db *pgxpool.Pool) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// FindByID retrieves a community by ID
func (r *CommunityRepository) FindByID(ctx context.Context, id string) (*community.Community, error) {
	query := `
		SELECT id, name, leader_id, is_active, created_at
		FROM communities
		WHERE id = $1
	`

	var c community.Community
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.LeaderID, &c.IsActive, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find community: %w", err)
	}

	return &c, nil
}
