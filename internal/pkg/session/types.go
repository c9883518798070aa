// internal/pkg/session/types.go
package session

import (
	"strconv"
	"time"
)

// Reason codes for expected session validation failures. These are part
// of the wire contract and must not change.
const (
	ReasonNotFound        = "session_not_found"
	ReasonInactive        = "session_inactive"
	ReasonDeviceMismatch  = "device_mismatch"
	ReasonActivityTimeout = "activity_timeout"
)

// Session is the single authoritative per-user record binding a device,
// activity window and the server-held refresh token.
type Session struct {
	SessionID         string
	UserID            string
	DeviceFingerprint string
	DevicePlatform    string
	DeviceModel       string
	DeviceVersion     string
	IPAddress         string
	UserAgent         string
	CreatedAt         time.Time
	LastActivity      time.Time
	IsActive          bool
	LoginCount        int

	// Never serialized into API responses; read it through
	// Store.RefreshToken.
	refreshToken string
}

// CreateResult is returned by CreateOrUpdate.
type CreateResult struct {
	SessionID    string
	IsNewSession bool
	ExpiresAt    time.Time
}

// Validation is the tagged result of a session check.
type Validation struct {
	IsValid        bool
	Reason         string
	SessionRevoked bool
	Session        *Session
}

// Stats summarizes the session population.
type Stats struct {
	Total    int
	Active   int
	Inactive int
	Expired  int
}

func (s *Session) toFields() map[string]string {
	return map[string]string{
		"sessionId":         s.SessionID,
		"userId":            s.UserID,
		"deviceFingerprint": s.DeviceFingerprint,
		"devicePlatform":    s.DevicePlatform,
		"deviceModel":       s.DeviceModel,
		"deviceVersion":     s.DeviceVersion,
		"ipAddress":         s.IPAddress,
		"userAgent":         s.UserAgent,
		"createdAt":         s.CreatedAt.UTC().Format(time.RFC3339),
		"lastActivity":      s.LastActivity.UTC().Format(time.RFC3339),
		"isActive":          strconv.FormatBool(s.IsActive),
		"loginCount":        strconv.Itoa(s.LoginCount),
		"refreshToken":      s.refreshToken,
	}
}

func sessionFromFields(fields map[string]string) *Session {
	createdAt, _ := time.Parse(time.RFC3339, fields["createdAt"])
	lastActivity, _ := time.Parse(time.RFC3339, fields["lastActivity"])
	loginCount, _ := strconv.Atoi(fields["loginCount"])

	return &Session{
		SessionID:         fields["sessionId"],
		UserID:            fields["userId"],
		DeviceFingerprint: fields["deviceFingerprint"],
		DevicePlatform:    fields["devicePlatform"],
		DeviceModel:       fields["deviceModel"],
		DeviceVersion:     fields["deviceVersion"],
		IPAddress:         fields["ipAddress"],
		UserAgent:         fields["userAgent"],
		CreatedAt:         createdAt,
		LastActivity:      lastActivity,
		IsActive:          fields["isActive"] == "true",
		LoginCount:        loginCount,
		refreshToken:      fields["refreshToken"],
	}
}
