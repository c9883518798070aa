// internal/domain/auth/entity.go
package auth

import (
	"context"
	"time"
)

// Account verification states. Only verified users can hold a session.
const (
	StateNotVerified = "notVerified"
	StateVerified    = "verified"
	StateBlocked     = "blocked"
	StateDeleted     = "deleted"
)

// Account roles.
const (
	RoleUser            = "user"
	RoleCommunityLeader = "leader_of_community"
)

// User is the identity record. Persistence is an external collaborator
// consumed through the UserStore contract; the orchestrator reads
// status and role fields and delegates mutations.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Surname           string    `json:"surname"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	PasswordHash      string    `json:"-"`
	IsVerified        string    `json:"isVerified"` // notVerified, verified, blocked, deleted
	Status            string    `json:"status"`     // user, leader_of_community
	LeaderCommunityID string    `json:"leaderCommunityId,omitempty"`
	LastLoginAt       time.Time `json:"lastLoginAt"`
	IsLoggedIn        bool      `json:"isLoggedIn"`
}

// UserStore is the narrow persistence contract the orchestrator
// consumes.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetLoggedIn(ctx context.Context, id string, loggedIn bool) error
}
