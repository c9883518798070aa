// internal/service/auth/auth_test.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "topluluk-service/internal/domain/auth"
	"topluluk-service/internal/pkg/device"
	xerrors "topluluk-service/internal/pkg/errors"
	"topluluk-service/internal/pkg/event"
	"topluluk-service/internal/pkg/kv"
	"topluluk-service/internal/pkg/session"
	"topluluk-service/internal/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*domain.User)}
}

func (f *fakeUserStore) add(u *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) FindByEmailOrPhone(_ context.Context, email, phone string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.LastLoginAt = at
		u.IsLoggedIn = true
	}
	return nil
}

func (f *fakeUserStore) SetLoggedIn(_ context.Context, id string, loggedIn bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.IsLoggedIn = loggedIn
	}
	return nil
}

type fixture struct {
	service   *Service
	users     *fakeUserStore
	sessions  *session.Store
	authority *token.Authority
	transport *event.InprocTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := kv.NewMemory()

	authority, err := token.NewAuthority(token.Config{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		Issuer:        "topluluk-app",
		Audience:      "topluluk-users",
	})
	require.NoError(t, err)

	transport := event.NewInprocTransport()
	users := newFakeUserStore()
	sessions := session.NewStore(store, logger)
	devices := device.NewTrustService(store, logger)
	publisher := event.NewPublisher(transport, "user-service", logger)

	svc := NewService(users, authority, sessions, devices, publisher, logger)
	return &fixture{
		service:   svc,
		users:     users,
		sessions:  sessions,
		authority: authority,
		transport: transport,
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func verifiedUser(t *testing.T) *domain.User {
	return &domain.User{
		ID:           "user-1",
		Name:         "Ayse",
		Surname:      "Yilmaz",
		Email:        "ayse@example.com",
		Phone:        "+905551112233",
		PasswordHash: hashPassword(t, "password123"),
		IsVerified:   domain.StateVerified,
		Status:       domain.RoleUser,
	}
}

func iosDevice() device.Info {
	return device.Info{Platform: "ios", Model: "iPhone 15", Version: "17.4"}
}

func androidDevice() device.Info {
	return device.Info{Platform: "android", Model: "Pixel 8", Version: "14"}
}

func loginRequest() domain.LoginRequest {
	return domain.LoginRequest{
		Email:      "ayse@example.com",
		Password:   "password123",
		DeviceInfo: iosDevice(),
		IPAddress:  "10.0.0.1",
	}
}

// respondCommunity registers an in-process community responder.
func respondCommunity(t *testing.T, transport *event.InprocTransport, known map[string]event.CommunitySummary) {
	t.Helper()
	sub := event.NewSubscriber(transport, "community-service", zap.NewNop())
	handle, err := sub.RespondTo(event.TopicCommunityGet, func(_ context.Context, payload json.RawMessage, _ event.Metadata) (interface{}, error) {
		var req event.CommunityGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		if c, ok := known[req.CommunityID]; ok {
			return event.CommunityGetResponse{Success: true, Community: &c}, nil
		}
		return event.CommunityGetResponse{Success: false, Error: "community not found", Code: "COMMUNITY_NOT_FOUND"}, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	result, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "Bearer", result.TokenType)

	v := f.authority.ValidateAccessToken(result.AccessToken)
	require.True(t, v.IsValid)
	assert.Equal(t, "user-1", v.Claims.UserID)
	assert.Equal(t, device.Fingerprint(iosDevice()), v.Claims.DeviceFingerprint)

	// A refresh token was minted and parked in the session.
	refresh, err := f.sessions.RefreshToken(ctx, "user-1")
	require.NoError(t, err)
	rv := f.authority.ValidateRefreshToken(refresh)
	assert.True(t, rv.IsValid)

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, v.Claims.SessionID, sess.SessionID)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))

	req := loginRequest()
	req.Password = "wrong"
	_, err := f.service.Login(context.Background(), req)
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Login(context.Background(), loginRequest())
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

func TestLoginByPhone(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))

	req := loginRequest()
	req.Email = ""
	req.Phone = "+905551112233"
	_, err := f.service.Login(context.Background(), req)
	require.NoError(t, err)
}

func TestLoginBlockedUser(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.IsVerified = domain.StateBlocked
	f.users.add(u)

	_, err := f.service.Login(context.Background(), loginRequest())
	var forbidden *xerrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.ReasonUserBlocked, forbidden.Details["reason"])
}

func TestLoginUnverifiedUser(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.IsVerified = domain.StateNotVerified
	f.users.add(u)

	_, err := f.service.Login(context.Background(), loginRequest())
	var forbidden *xerrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.ReasonUserNotVerified, forbidden.Details["reason"])
}

func TestLeaderWithoutCommunityID(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.Status = domain.RoleCommunityLeader
	f.users.add(u)

	_, err := f.service.Login(context.Background(), loginRequest())
	var forbidden *xerrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.ReasonCommunityNotRegistered, forbidden.Details["reason"])
}

func TestLeaderCommunityExists(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.Status = domain.RoleCommunityLeader
	u.LeaderCommunityID = "comm-1"
	f.users.add(u)
	respondCommunity(t, f.transport, map[string]event.CommunitySummary{
		"comm-1": {ID: "comm-1", Name: "Test Community", LeaderID: "user-1", IsActive: true},
	})

	_, err := f.service.Login(context.Background(), loginRequest())
	require.NoError(t, err)
}

func TestLeaderCommunityMissing(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.Status = domain.RoleCommunityLeader
	u.LeaderCommunityID = "gone-1"
	f.users.add(u)
	respondCommunity(t, f.transport, nil)

	_, err := f.service.Login(context.Background(), loginRequest())
	var forbidden *xerrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.ReasonCommunityNotFound, forbidden.Details["reason"])
	assert.Contains(t, forbidden.Details["supportCode"], "COMM_NOT_FOUND_gone-1_")
}

func TestLeaderCommunityServiceUnreachable(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	u.Status = domain.RoleCommunityLeader
	u.LeaderCommunityID = "comm-1"
	f.users.add(u)
	// No responder registered; cancel quickly instead of waiting out the
	// request window.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.service.Login(ctx, loginRequest())
	var forbidden *xerrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.ReasonCommunityNotFound, forbidden.Details["reason"])
	assert.NotEmpty(t, forbidden.Details["supportCode"])
}

func TestCheckAuthSuccess(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	result := f.service.CheckAuth(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	assert.True(t, result.IsValid)
	assert.Equal(t, "user-1", result.UserID)
	assert.NotEmpty(t, result.SessionID)
	assert.False(t, result.ClearToken)
}

func TestCheckAuthGarbageToken(t *testing.T) {
	f := newFixture(t)

	result := f.service.CheckAuth(context.Background(), "garbage", iosDevice(), "10.0.0.1")
	assert.False(t, result.IsValid)
	assert.Equal(t, token.ReasonInvalidToken, result.Reason)
	assert.True(t, result.ClearToken)
}

func TestCheckAuthDeviceMismatchRevokesSession(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	result := f.service.CheckAuth(ctx, login.AccessToken, androidDevice(), "10.0.0.9")
	assert.False(t, result.IsValid)
	assert.Equal(t, session.ReasonDeviceMismatch, result.Reason)
	assert.True(t, result.SessionRevoked)
	assert.True(t, result.ClearToken)

	// The original device is locked out too: the session is gone.
	result = f.service.CheckAuth(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	assert.Equal(t, session.ReasonNotFound, result.Reason)
}

func TestCheckAuthUserDeletedAfterLogin(t *testing.T) {
	f := newFixture(t)
	u := verifiedUser(t)
	f.users.add(u)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	u.IsVerified = domain.StateDeleted

	result := f.service.CheckAuth(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	assert.False(t, result.IsValid)
	assert.Equal(t, domain.ReasonUserDeleted, result.Reason)
	assert.True(t, result.ClearToken)

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCheckAuthSupersededToken(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	_, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	// A token minted against a different session ID is rejected even
	// though its signature is fine.
	stale, err := f.authority.IssueAccessToken(token.Subject{
		UserID:            "user-1",
		SessionID:         "some-old-session",
		DeviceFingerprint: device.Fingerprint(iosDevice()),
	})
	require.NoError(t, err)

	result := f.service.CheckAuth(ctx, stale.Token, iosDevice(), "10.0.0.1")
	assert.False(t, result.IsValid)
	assert.Equal(t, session.ReasonNotFound, result.Reason)
	assert.True(t, result.ClearToken)
}

func TestCheckAuthRenewsOldToken(t *testing.T) {
	logger := zap.NewNop()
	store := kv.NewMemory()
	authority, err := token.NewAuthority(token.Config{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		Issuer:        "topluluk-app",
		Audience:      "topluluk-users",
		RenewalAge:    time.Nanosecond,
	})
	require.NoError(t, err)

	transport := event.NewInprocTransport()
	users := newFakeUserStore()
	sessions := session.NewStore(store, logger)
	devices := device.NewTrustService(store, logger)
	publisher := event.NewPublisher(transport, "user-service", logger)
	svc := NewService(users, authority, sessions, devices, publisher, logger)

	users.add(verifiedUser(t))
	ctx := context.Background()

	login, err := svc.Login(ctx, loginRequest())
	require.NoError(t, err)

	result := svc.CheckAuth(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	require.True(t, result.IsValid)
	assert.NotEmpty(t, result.NewAccessToken)
	assert.NotEqual(t, login.AccessToken, result.NewAccessToken)

	// The old token keeps working until its own expiry.
	again := svc.CheckAuth(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	assert.True(t, again.IsValid)
}

func TestRefreshSuccess(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	result := f.service.Refresh(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	require.True(t, result.Success)
	assert.NotEmpty(t, result.AccessToken)

	v := f.authority.ValidateAccessToken(result.AccessToken)
	assert.True(t, v.IsValid)
}

func TestRefreshWithoutSession(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)
	f.service.Logout(ctx, "user-1")

	result := f.service.Refresh(ctx, login.AccessToken, iosDevice(), "10.0.0.1")
	assert.False(t, result.Success)
	assert.Equal(t, session.ReasonNotFound, result.Reason)
}

func TestRefreshGarbageToken(t *testing.T) {
	f := newFixture(t)

	result := f.service.Refresh(context.Background(), "garbage", iosDevice(), "10.0.0.1")
	assert.False(t, result.Success)
	assert.Equal(t, token.ReasonInvalidToken, result.Reason)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	_, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	assert.True(t, f.service.Logout(ctx, "user-1"))
	assert.False(t, f.service.Logout(ctx, "user-1"))

	u, err := f.users.FindByID(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, u.IsLoggedIn)
}

func TestSessionInfoHidesRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))
	ctx := context.Background()

	_, err := f.service.Login(ctx, loginRequest())
	require.NoError(t, err)

	info, err := f.service.SessionInfo(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ios", info.Device.Platform)
	assert.Equal(t, 1, info.LoginCount)

	// The serialized form must not leak the refresh token.
	data, err := json.Marshal(info)
	require.NoError(t, err)
	refresh, err := f.sessions.RefreshToken(ctx, "user-1")
	require.NoError(t, err)
	assert.NotContains(t, string(data), refresh)
}

func TestSessionInfoWithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SessionInfo(context.Background(), "nobody")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestGetMeResponder(t *testing.T) {
	f := newFixture(t)
	f.users.add(verifiedUser(t))

	subscriber := event.NewSubscriber(f.transport, "user-service", zap.NewNop())
	subs, err := f.service.RegisterResponders(subscriber)
	require.NoError(t, err)
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	caller := event.NewPublisher(f.transport, "community-service", zap.NewNop())
	raw, err := caller.Request(context.Background(), event.TopicUserGetMe, event.UserGetMeRequest{UserID: "user-1"}, time.Second)
	require.NoError(t, err)

	var resp event.UserGetMeResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.True(t, resp.Success)
	assert.Equal(t, "Ayse", resp.User.Name)

	raw, err = caller.Request(context.Background(), event.TopicUserGetMe, event.UserGetMeRequest{UserID: "ghost"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "USER_NOT_FOUND", resp.Code)
}
