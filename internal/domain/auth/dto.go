// internal/domain/auth/dto.go
package auth

import (
	"topluluk-service/internal/pkg/device"
)

// Orchestrator-level reason codes, on top of the token and session
// package reasons. Frozen wire contract.
const (
	ReasonUserNotFound           = "user_not_found"
	ReasonUserBlocked            = "user_blocked"
	ReasonUserDeleted            = "user_deleted"
	ReasonUserNotVerified        = "user_not_verified"
	ReasonCommunityNotRegistered = "community_not_registered"
	ReasonCommunityNotFound      = "community_not_found"
	ReasonSystemError            = "system_error"
)

// LoginRequest carries credentials plus the self-reported device
// attributes every protected call must include.
type LoginRequest struct {
	Email      string      `json:"email"`
	Phone      string      `json:"phone"`
	Password   string      `json:"password" binding:"required"`
	DeviceInfo device.Info `json:"deviceInfo" binding:"required"`
	IPAddress  string      `json:"-"`
}

// LoginResult returns only the access token; the refresh token stays
// server-side in the session.
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// CheckAuthResult is the tagged outcome of the app-start auth probe.
// Every failure branch carries a distinct reason and tells the caller
// whether to discard its client-held token. The probe never errors to
// its caller.
type CheckAuthResult struct {
	IsValid        bool   `json:"isValid"`
	Reason         string `json:"reason,omitempty"`
	Expired        bool   `json:"expired,omitempty"`
	SessionRevoked bool   `json:"sessionRevoked,omitempty"`
	ClearToken     bool   `json:"clearToken,omitempty"`
	UserID         string `json:"userId,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	NewAccessToken string `json:"newAccessToken,omitempty"`
}

// RefreshResult is the tagged outcome of an access-token refresh.
type RefreshResult struct {
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
	Expired     bool   `json:"expired,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	TokenType   string `json:"tokenType,omitempty"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
}

// SessionInfo is the safe, client-facing session summary. The refresh
// token is deliberately absent.
type SessionInfo struct {
	SessionID    string        `json:"sessionId"`
	CreatedAt    string        `json:"createdAt"`
	LastActivity string        `json:"lastActivity"`
	LoginCount   int           `json:"loginCount"`
	Device       SessionDevice `json:"deviceInfo"`
}

// SessionDevice is the device slice of SessionInfo.
type SessionDevice struct {
	Platform    string `json:"platform"`
	Model       string `json:"model"`
	Fingerprint string `json:"fingerprint"`
}
