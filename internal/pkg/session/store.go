// internal/pkg/session/store.go
package session

import (
	"context"
	"fmt"
	"time"

	"topluluk-service/internal/pkg/device"
	"topluluk-service/internal/pkg/kv"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	sessionPrefix = "session:user:"

	// Absolute TTL backstop on the record itself; the activity timeout
	// below is the business check. Both exist independently.
	sessionDuration = 24 * time.Hour

	// A session with no authenticated activity inside this window is
	// stale regardless of the token's own expiry.
	activityTimeout = 30 * time.Minute
)

// Store holds at most one session per user in the backing key-value
// store. There is no lock around read-modify-write: two concurrent
// logins for the same user resolve by last-write-wins, which the
// single-session constraint accepts by design.
type Store struct {
	store  kv.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(store kv.Store, logger *zap.Logger) *Store {
	return &Store{store: store, logger: logger, now: time.Now}
}

func sessionKey(userID string) string {
	return sessionPrefix + userID
}

// CreateOrUpdate creates the user's session or supersedes the existing
// one. A login from a different device silently replaces the prior
// binding; the replacement is logged as a security-relevant event, not
// blocked. CreatedAt, the session ID and a previously stored refresh
// token survive re-logins.
func (s *Store) CreateOrUpdate(ctx context.Context, userID string, info device.Info, ipAddress, refreshToken string) (CreateResult, error) {
	fingerprint := device.Fingerprint(info)
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	sess := &Session{
		SessionID:         ulid.Make().String(),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		DevicePlatform:    info.Platform,
		DeviceModel:       info.Model,
		DeviceVersion:     info.Version,
		IPAddress:         ipAddress,
		UserAgent:         info.UserAgent,
		CreatedAt:         now,
		LastActivity:      now,
		IsActive:          true,
		LoginCount:        1,
		refreshToken:      refreshToken,
	}

	if existing != nil {
		if existing.DeviceFingerprint != fingerprint {
			s.logger.Warn("new device login, replacing existing session",
				zap.String("userId", userID),
				zap.String("oldDevice", existing.DeviceFingerprint),
				zap.String("newDevice", fingerprint),
				zap.String("oldIP", existing.IPAddress),
				zap.String("newIP", ipAddress))
		}
		sess.SessionID = existing.SessionID
		sess.CreatedAt = existing.CreatedAt
		sess.LoginCount = existing.LoginCount + 1
		if refreshToken == "" {
			sess.refreshToken = existing.refreshToken
		}
	}

	key := sessionKey(userID)
	if err := s.store.HSet(ctx, key, sess.toFields()); err != nil {
		return CreateResult{}, fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.store.Expire(ctx, key, sessionDuration); err != nil {
		return CreateResult{}, fmt.Errorf("failed to set session TTL: %w", err)
	}

	s.logger.Info("session created or updated",
		zap.String("sessionId", sess.SessionID),
		zap.String("userId", userID),
		zap.String("deviceFingerprint", fingerprint),
		zap.Bool("isNewSession", existing == nil),
		zap.Bool("hasRefreshToken", refreshToken != ""))

	return CreateResult{
		SessionID:    sess.SessionID,
		IsNewSession: existing == nil,
		ExpiresAt:    now.Add(sessionDuration),
	}, nil
}

// Get returns the user's session, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID string) (*Session, error) {
	fields, err := s.store.HGetAll(ctx, sessionKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return sessionFromFields(fields), nil
}

// UpdateActivity bumps lastActivity and renews the absolute TTL. It is
// a no-op when no session exists, so a revoked session cannot be
// resurrected by a late activity write.
func (s *Store) UpdateActivity(ctx context.Context, userID, ipAddress string) (bool, error) {
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	fields := map[string]string{
		"lastActivity": s.now().UTC().Format(time.RFC3339),
	}
	if ipAddress != "" {
		fields["ipAddress"] = ipAddress
	}

	key := sessionKey(userID)
	if err := s.store.HSet(ctx, key, fields); err != nil {
		return false, fmt.Errorf("failed to update session activity: %w", err)
	}
	if err := s.store.Expire(ctx, key, sessionDuration); err != nil {
		return false, fmt.Errorf("failed to renew session TTL: %w", err)
	}
	return true, nil
}

// IsExpiredByActivity reports whether lastActivity is past the activity
// window. Pure in elapsed time: false just before the threshold, true
// just after.
func (s *Store) IsExpiredByActivity(lastActivity time.Time) bool {
	return s.now().Sub(lastActivity) > activityTimeout
}

// Validate runs the composite session check. Device mismatch and
// activity timeout revoke the session as a side effect, so the next
// validation for that user reports session_not_found.
func (s *Store) Validate(ctx context.Context, userID string, info device.Info) Validation {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		s.logger.Error("session validation read failed",
			zap.String("userId", userID),
			zap.Error(err))
		return Validation{Reason: ReasonNotFound}
	}
	if sess == nil {
		return Validation{Reason: ReasonNotFound}
	}
	if !sess.IsActive {
		return Validation{Reason: ReasonInactive}
	}

	fingerprint := device.Fingerprint(info)
	if sess.DeviceFingerprint != fingerprint {
		s.logger.Warn("device fingerprint mismatch, revoking session",
			zap.String("userId", userID),
			zap.String("sessionDevice", sess.DeviceFingerprint),
			zap.String("currentDevice", fingerprint))
		s.Revoke(ctx, userID, "device_mismatch")
		return Validation{Reason: ReasonDeviceMismatch, SessionRevoked: true}
	}

	if s.IsExpiredByActivity(sess.LastActivity) {
		s.Revoke(ctx, userID, "activity_timeout")
		return Validation{Reason: ReasonActivityTimeout}
	}

	return Validation{IsValid: true, Session: sess}
}

// Revoke deletes the session unconditionally and immediately. The
// reason is audit-only. Returns false when nothing was deleted.
func (s *Store) Revoke(ctx context.Context, userID, reason string) bool {
	deleted, err := s.store.Del(ctx, sessionKey(userID))
	if err != nil {
		s.logger.Error("failed to revoke session",
			zap.String("userId", userID),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}
	if deleted == 0 {
		s.logger.Warn("session not found during revoke",
			zap.String("userId", userID),
			zap.String("reason", reason))
		return false
	}

	s.logger.Info("session revoked",
		zap.String("userId", userID),
		zap.String("reason", reason))
	return true
}

// RefreshToken returns the server-held refresh token, or "" when no
// session exists.
func (s *Store) RefreshToken(ctx context.Context, userID string) (string, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	return sess.refreshToken, nil
}

// UpdateRefreshToken rotates the stored refresh token and slides the
// session forward. It is a no-op when no session exists, so a revoked
// session cannot be resurrected by a late token write.
func (s *Store) UpdateRefreshToken(ctx context.Context, userID, refreshToken string) (bool, error) {
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	key := sessionKey(userID)
	fields := map[string]string{
		"refreshToken": refreshToken,
		"lastActivity": s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.HSet(ctx, key, fields); err != nil {
		return false, fmt.Errorf("failed to update refresh token: %w", err)
	}
	if err := s.store.Expire(ctx, key, sessionDuration); err != nil {
		return false, fmt.Errorf("failed to renew session TTL: %w", err)
	}
	return true, nil
}

// CleanupExpired sweeps sessions past the activity window. The absolute
// TTL already reaps leaked records; this removes the ones still inside
// their TTL but idle too long.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		fields, err := s.store.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		sess := sessionFromFields(fields)
		if sess.IsActive && s.IsExpiredByActivity(sess.LastActivity) {
			if s.Revoke(ctx, sess.UserID, "cleanup_expired") {
				cleaned++
			}
		}
	}

	s.logger.Info("session cleanup completed", zap.Int("cleaned", cleaned))
	return cleaned, nil
}

// SessionStats counts sessions by state.
func (s *Store) SessionStats(ctx context.Context) (Stats, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	stats := Stats{Total: len(keys)}
	for _, key := range keys {
		fields, err := s.store.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		sess := sessionFromFields(fields)
		switch {
		case !sess.IsActive:
			stats.Inactive++
		case s.IsExpiredByActivity(sess.LastActivity):
			stats.Expired++
		default:
			stats.Active++
		}
	}
	return stats, nil
}

// FindByFingerprint returns the first active session bound to the
// fingerprint, or nil.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*Session, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, key := range keys {
		fields, err := s.store.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		sess := sessionFromFields(fields)
		if sess.IsActive && sess.DeviceFingerprint == fingerprint {
			return sess, nil
		}
	}
	return nil, nil
}

// FindByIP returns all active sessions from the given address.
func (s *Store) FindByIP(ctx context.Context, ipAddress string) ([]*Session, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var matches []*Session
	for _, key := range keys {
		fields, err := s.store.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		sess := sessionFromFields(fields)
		if sess.IsActive && sess.IPAddress == ipAddress {
			matches = append(matches, sess)
		}
	}
	return matches, nil
}
