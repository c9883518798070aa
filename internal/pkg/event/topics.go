// internal/pkg/event/topics.go
package event

// Topic names. Each topic maps to exactly one request type and one
// response type, checked at the serialization boundary.
const (
	TopicCommunityGet = "community.create.getCommunity"
	TopicUserGetMe    = "user.auth.getMe"
)

// CommunityGetRequest asks the community service whether a community
// exists. Used by the login-time existence check for community leaders.
type CommunityGetRequest struct {
	CommunityID string `json:"communityId"`
	UserID      string `json:"userId"`
	Timestamp   string `json:"timestamp"`
}

// CommunitySummary is the public projection of a community record.
type CommunitySummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LeaderID string `json:"leaderId"`
	IsActive bool   `json:"isActive"`
}

// CommunityGetResponse answers a CommunityGetRequest.
type CommunityGetResponse struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Community *CommunitySummary `json:"community,omitempty"`
}

// UserGetMeRequest asks the identity service for a user profile.
type UserGetMeRequest struct {
	UserID string `json:"userId"`
}

// UserSummary is the cross-service projection of a user record.
type UserSummary struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Surname           string `json:"surname"`
	Email             string `json:"email"`
	Status            string `json:"status"`
	LeaderCommunityID string `json:"leaderCommunityId,omitempty"`
}

// UserGetMeResponse answers a UserGetMeRequest.
type UserGetMeResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
	User    *UserSummary `json:"user,omitempty"`
}

// RPCError is the error-shaped payload a responder publishes when its
// handler fails. The request is still acked so it is not redelivered
// forever.
type RPCError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}
