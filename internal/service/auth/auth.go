// internal/service/auth/auth.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "topluluk-service/internal/domain/auth"
	"topluluk-service/internal/pkg/device"
	xerrors "topluluk-service/internal/pkg/errors"
	"topluluk-service/internal/pkg/event"
	"topluluk-service/internal/pkg/session"
	"topluluk-service/internal/pkg/token"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const communityRequestTimeout = 5 * time.Second

// Service orchestrates login, logout, the auth probe and token refresh
// across the token authority, the session store, the device trust
// layer and the event bus.
type Service struct {
	users     domain.UserStore
	tokens    *token.Authority
	sessions  *session.Store
	devices   *device.TrustService
	publisher *event.Publisher
	logger    *zap.Logger
}

func NewService(
	users domain.UserStore,
	tokens *token.Authority,
	sessions *session.Store,
	devices *device.TrustService,
	publisher *event.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		sessions:  sessions,
		devices:   devices,
		publisher: publisher,
		logger:    logger,
	}
}

// Login authenticates the credentials, enforces the account-state and
// community-leader gates, scores the device, creates or supersedes the
// single session and mints the token pair. Only the access token is
// returned; the refresh token stays inside the session record.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	user, err := s.users.FindByEmailOrPhone(ctx, req.Email, req.Phone)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	if err := s.checkAccountState(user); err != nil {
		return nil, err
	}

	if user.Status == domain.RoleCommunityLeader {
		if err := s.checkLeaderCommunity(ctx, user); err != nil {
			return nil, err
		}
	}

	fingerprint := device.Fingerprint(req.DeviceInfo)
	check := s.devices.IsNewDevice(ctx, user.ID, fingerprint)
	risk := device.AnalyzeRisk(req.DeviceInfo, check.KnownCount)

	s.logger.Info("login device assessment",
		zap.String("userId", user.ID),
		zap.String("fingerprint", fingerprint),
		zap.Bool("isNewDevice", check.IsNew),
		zap.Int("riskScore", risk.Score),
		zap.String("riskLevel", risk.Level))

	created, err := s.sessions.CreateOrUpdate(ctx, user.ID, req.DeviceInfo, req.IPAddress, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	subject := token.Subject{
		UserID:            user.ID,
		SessionID:         created.SessionID,
		DeviceFingerprint: fingerprint,
	}
	access, err := s.tokens.IssueAccessToken(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	stored, err := s.sessions.UpdateRefreshToken(ctx, user.ID, refresh.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	if !stored {
		return nil, fmt.Errorf("session for user %s vanished before the refresh token was stored", user.ID)
	}

	if check.IsNew && risk.Level != device.RiskHigh {
		if _, err := s.devices.RegisterDevice(ctx, user.ID, req.DeviceInfo, req.IPAddress); err != nil {
			// Trust registration is best-effort; the login already succeeded.
			s.logger.Warn("failed to register device trust",
				zap.String("userId", user.ID),
				zap.Error(err))
		}
	} else if check.IsNew {
		s.logger.Warn("high risk device, skipping trust registration",
			zap.String("userId", user.ID),
			zap.String("fingerprint", fingerprint),
			zap.Int("riskScore", risk.Score),
			zap.String("recommendation", risk.Recommendation))
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.Warn("failed to record last login",
			zap.String("userId", user.ID),
			zap.Error(err))
	}

	s.logger.Info("login successful",
		zap.String("userId", user.ID),
		zap.String("sessionId", created.SessionID),
		zap.Bool("isNewSession", created.IsNewSession))

	return &domain.LoginResult{
		AccessToken: access.Token,
		TokenType:   access.TokenType,
		ExpiresIn:   access.ExpiresIn,
	}, nil
}

func (s *Service) checkAccountState(user *domain.User) error {
	switch user.IsVerified {
	case domain.StateBlocked:
		return xerrors.NewForbidden("account is blocked", map[string]interface{}{
			"reason": domain.ReasonUserBlocked,
		})
	case domain.StateDeleted:
		return xerrors.NewForbidden("account is deleted", map[string]interface{}{
			"reason": domain.ReasonUserDeleted,
		})
	case domain.StateNotVerified:
		return xerrors.NewForbidden("account is not verified", map[string]interface{}{
			"reason": domain.ReasonUserNotVerified,
		})
	}
	return nil
}

// checkLeaderCommunity confirms over the bus that the leader's
// community actually exists. A leader whose community is gone cannot
// log in; the support code lets operators correlate the refusal.
func (s *Service) checkLeaderCommunity(ctx context.Context, user *domain.User) error {
	if user.LeaderCommunityID == "" {
		return xerrors.NewForbidden("community leader has no registered community", map[string]interface{}{
			"reason": domain.ReasonCommunityNotRegistered,
		})
	}

	req := event.CommunityGetRequest{
		CommunityID: user.LeaderCommunityID,
		UserID:      user.ID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	raw, err := s.publisher.Request(ctx, event.TopicCommunityGet, req, communityRequestTimeout)
	if err != nil {
		supportCode := fmt.Sprintf("COMM_NOT_FOUND_%s_%d", user.LeaderCommunityID, time.Now().Unix())
		s.logger.Error("community existence check failed",
			zap.String("userId", user.ID),
			zap.String("communityId", user.LeaderCommunityID),
			zap.String("supportCode", supportCode),
			zap.Error(err))
		return xerrors.NewForbidden("community could not be verified", map[string]interface{}{
			"reason":      domain.ReasonCommunityNotFound,
			"communityId": user.LeaderCommunityID,
			"supportCode": supportCode,
		})
	}

	var resp event.CommunityGetResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to decode community response: %w", err)
	}
	if !resp.Success || resp.Community == nil {
		supportCode := fmt.Sprintf("COMM_NOT_FOUND_%s_%d", user.LeaderCommunityID, time.Now().Unix())
		s.logger.Warn("community not found for leader",
			zap.String("userId", user.ID),
			zap.String("communityId", user.LeaderCommunityID),
			zap.String("supportCode", supportCode))
		return xerrors.NewForbidden("community not found", map[string]interface{}{
			"reason":      domain.ReasonCommunityNotFound,
			"communityId": user.LeaderCommunityID,
			"supportCode": supportCode,
		})
	}

	return nil
}

// CheckAuth is the app-start probe. It never returns an error: every
// outcome, expected or infrastructural, becomes a tagged result the
// client branches on. ClearToken tells the client its stored token is
// beyond recovery.
func (s *Service) CheckAuth(ctx context.Context, accessToken string, info device.Info, ipAddress string) domain.CheckAuthResult {
	validation := s.tokens.ValidateAccessToken(accessToken)
	if !validation.IsValid {
		return domain.CheckAuthResult{
			Reason:     validation.Reason,
			Expired:    validation.Expired,
			ClearToken: true,
		}
	}
	claims := validation.Claims

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return domain.CheckAuthResult{Reason: domain.ReasonUserNotFound, ClearToken: true}
		}
		s.logger.Error("auth probe user lookup failed",
			zap.String("userId", claims.UserID),
			zap.Error(err))
		return domain.CheckAuthResult{Reason: domain.ReasonSystemError}
	}

	if reason := accountStateReason(user); reason != "" {
		// The account can no longer hold a session at all.
		s.sessions.Revoke(ctx, user.ID, reason)
		return domain.CheckAuthResult{Reason: reason, ClearToken: true}
	}

	if user.Status == domain.RoleCommunityLeader {
		if result, failed := s.probeLeaderCommunity(ctx, user); failed {
			return result
		}
	}

	sessionCheck := s.sessions.Validate(ctx, user.ID, info)
	if !sessionCheck.IsValid {
		return domain.CheckAuthResult{
			Reason:         sessionCheck.Reason,
			SessionRevoked: sessionCheck.SessionRevoked,
			ClearToken:     true,
		}
	}
	if sessionCheck.Session.SessionID != claims.SessionID {
		// Token from a superseded session.
		return domain.CheckAuthResult{Reason: session.ReasonNotFound, ClearToken: true}
	}

	if _, err := s.sessions.UpdateActivity(ctx, user.ID, ipAddress); err != nil {
		s.logger.Warn("failed to slide session activity",
			zap.String("userId", user.ID),
			zap.Error(err))
	}
	if err := s.devices.UpdateLastSeen(ctx, claims.DeviceFingerprint, ipAddress); err != nil {
		s.logger.Warn("failed to update device last seen",
			zap.String("fingerprint", claims.DeviceFingerprint),
			zap.Error(err))
	}

	result := domain.CheckAuthResult{
		IsValid:   true,
		UserID:    user.ID,
		SessionID: claims.SessionID,
	}

	if s.tokens.ShouldRenew(claims) {
		renewed, err := s.tokens.IssueAccessToken(token.Subject{
			UserID:            claims.UserID,
			SessionID:         claims.SessionID,
			DeviceFingerprint: claims.DeviceFingerprint,
		})
		if err != nil {
			s.logger.Warn("failed to renew access token",
				zap.String("userId", user.ID),
				zap.Error(err))
		} else {
			result.NewAccessToken = renewed.Token
			s.logger.Info("access token renewed",
				zap.String("userId", user.ID),
				zap.String("sessionId", claims.SessionID))
		}
	}

	return result
}

func accountStateReason(user *domain.User) string {
	switch user.IsVerified {
	case domain.StateBlocked:
		return domain.ReasonUserBlocked
	case domain.StateDeleted:
		return domain.ReasonUserDeleted
	case domain.StateNotVerified:
		return domain.ReasonUserNotVerified
	}
	return ""
}

// probeLeaderCommunity mirrors the login-time community check for the
// auth probe. A missing community fails the probe without clearing the
// token; an unreachable community service degrades to system_error so
// a bus outage does not log every leader out.
func (s *Service) probeLeaderCommunity(ctx context.Context, user *domain.User) (domain.CheckAuthResult, bool) {
	if user.LeaderCommunityID == "" {
		return domain.CheckAuthResult{Reason: domain.ReasonCommunityNotRegistered}, true
	}

	req := event.CommunityGetRequest{
		CommunityID: user.LeaderCommunityID,
		UserID:      user.ID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := s.publisher.Request(ctx, event.TopicCommunityGet, req, communityRequestTimeout)
	if err != nil {
		s.logger.Error("auth probe community check failed",
			zap.String("userId", user.ID),
			zap.String("communityId", user.LeaderCommunityID),
			zap.Error(err))
		return domain.CheckAuthResult{Reason: domain.ReasonSystemError}, true
	}

	var resp event.CommunityGetResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.CheckAuthResult{Reason: domain.ReasonSystemError}, true
	}
	if !resp.Success || resp.Community == nil {
		return domain.CheckAuthResult{Reason: domain.ReasonCommunityNotFound}, true
	}
	return domain.CheckAuthResult{}, false
}

// Refresh mints a fresh access token from the server-held refresh
// token. The client never submits a refresh token; it presents its
// stale access token, which is decoded without verification purely to
// locate the session.
func (s *Service) Refresh(ctx context.Context, staleAccessToken string, info device.Info, ipAddress string) domain.RefreshResult {
	tokenInfo := s.tokens.ExtractInfo(staleAccessToken)
	if tokenInfo == nil || tokenInfo.UserID == "" {
		return domain.RefreshResult{Reason: token.ReasonInvalidToken}
	}

	refreshToken, err := s.sessions.RefreshToken(ctx, tokenInfo.UserID)
	if err != nil {
		s.logger.Error("refresh token lookup failed",
			zap.String("userId", tokenInfo.UserID),
			zap.Error(err))
		return domain.RefreshResult{Reason: domain.ReasonSystemError}
	}
	if refreshToken == "" {
		return domain.RefreshResult{Reason: session.ReasonNotFound}
	}

	validation := s.tokens.ValidateRefreshToken(refreshToken)
	if !validation.IsValid {
		// Refresh exhausted; the session is useless without it.
		s.sessions.Revoke(ctx, tokenInfo.UserID, "refresh_token_"+validation.Reason)
		return domain.RefreshResult{Reason: validation.Reason, Expired: validation.Expired}
	}

	sessionCheck := s.sessions.Validate(ctx, tokenInfo.UserID, info)
	if !sessionCheck.IsValid {
		return domain.RefreshResult{Reason: sessionCheck.Reason}
	}

	access, err := s.tokens.IssueAccessToken(token.Subject{
		UserID:            validation.Claims.UserID,
		SessionID:         validation.Claims.SessionID,
		DeviceFingerprint: validation.Claims.DeviceFingerprint,
	})
	if err != nil {
		s.logger.Error("failed to issue refreshed access token",
			zap.String("userId", tokenInfo.UserID),
			zap.Error(err))
		return domain.RefreshResult{Reason: domain.ReasonSystemError}
	}

	if _, err := s.sessions.UpdateActivity(ctx, tokenInfo.UserID, ipAddress); err != nil {
		s.logger.Warn("failed to slide session on refresh",
			zap.String("userId", tokenInfo.UserID),
			zap.Error(err))
	}

	s.logger.Info("access token refreshed",
		zap.String("userId", tokenInfo.UserID),
		zap.String("sessionId", validation.Claims.SessionID))

	return domain.RefreshResult{
		Success:     true,
		AccessToken: access.Token,
		TokenType:   access.TokenType,
		ExpiresIn:   access.ExpiresIn,
	}
}

// Logout revokes the user's session. Logging out twice is not an
// error; the second call reports revoked=false.
func (s *Service) Logout(ctx context.Context, userID string) bool {
	revoked := s.sessions.Revoke(ctx, userID, "manual_logout")
	if err := s.users.SetLoggedIn(ctx, userID, false); err != nil {
		s.logger.Warn("failed to clear logged-in flag",
			zap.String("userId", userID),
			zap.Error(err))
	}
	return revoked
}

// SessionInfo returns the client-safe session summary, or ErrNotFound
// when the user has no session.
func (s *Service) SessionInfo(ctx context.Context, userID string) (*domain.SessionInfo, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, xerrors.ErrNotFound
	}

	return &domain.SessionInfo{
		SessionID:    sess.SessionID,
		CreatedAt:    sess.CreatedAt.UTC().Format(time.RFC3339),
		LastActivity: sess.LastActivity.UTC().Format(time.RFC3339),
		LoginCount:   sess.LoginCount,
		Device: domain.SessionDevice{
			Platform:    sess.DevicePlatform,
			Model:       sess.DeviceModel,
			Fingerprint: sess.DeviceFingerprint,
		},
	}, nil
}

// RegisterResponders wires this service's RPC endpoints onto the bus.
// Other services resolve user profiles through user.auth.getMe.
func (s *Service) RegisterResponders(subscriber *event.Subscriber) ([]event.Subscription, error) {
	sub, err := subscriber.RespondTo(event.TopicUserGetMe, func(ctx context.Context, payload json.RawMessage, _ event.Metadata) (interface{}, error) {
		var req event.UserGetMeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("malformed getMe request: %w", err)
		}
		if req.UserID == "" {
			return event.UserGetMeResponse{Success: false, Error: "userId is required", Code: "INVALID_REQUEST"}, nil
		}

		user, err := s.users.FindByID(ctx, req.UserID)
		if err != nil {
			if xerrors.Is(err, xerrors.ErrNotFound) {
				return event.UserGetMeResponse{Success: false, Error: "user not found", Code: "USER_NOT_FOUND"}, nil
			}
			return nil, err
		}

		return event.UserGetMeResponse{
			Success: true,
			User: &event.UserSummary{
				ID:                user.ID,
				Name:              user.Name,
				Surname:           user.Surname,
				Email:             user.Email,
				Status:            user.Status,
				LeaderCommunityID: user.LeaderCommunityID,
			},
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register getMe responder: %w", err)
	}

	return []event.Subscription{sub}, nil
}
