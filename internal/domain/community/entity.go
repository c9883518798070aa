// internal/domain/community/entity.go
package community

import (
	"context"
	"time"
)

// Community is the minimal community projection the auth flows care
// about. Full community management lives in its own service.
type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LeaderID  string    `json:"leaderId"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the narrow persistence contract the community responder
// consumes.
type Store interface {
	FindByID(ctx context.Context, id string) (*Community, error)
}
