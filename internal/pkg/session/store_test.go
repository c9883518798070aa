// internal/pkg/session/store_test.go
package session

import (
	"context"
	"testing"
	"time"

	"topluluk-service/internal/pkg/device"
	"topluluk-service/internal/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	s := NewStore(kv.NewMemory(), zap.NewNop())
	s.now = func() time.Time { return *clock }
	return s, clock
}

func iosDevice() device.Info {
	return device.Info{Platform: "ios", Model: "iPhone 15", Version: "17.4"}
}

func androidDevice() device.Info {
	return device.Info{Platform: "android", Model: "Pixel 8", Version: "14"}
}

func TestCreateNewSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)
	assert.True(t, created.IsNewSession)
	assert.NotEmpty(t, created.SessionID)

	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, created.SessionID, sess.SessionID)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, device.Fingerprint(iosDevice()), sess.DeviceFingerprint)
	assert.True(t, sess.IsActive)
	assert.Equal(t, 1, sess.LoginCount)
}

func TestGetMissingSessionReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)

	sess, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestRepeatLoginSameDevicePreservesIdentity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	second, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.2", "refresh-2")
	require.NoError(t, err)
	assert.False(t, second.IsNewSession)
	assert.Equal(t, first.SessionID, second.SessionID)

	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.LoginCount)
	assert.Equal(t, "10.0.0.2", sess.IPAddress)
}

func TestNewDeviceLoginReplacesSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	_, err = s.CreateOrUpdate(ctx, "user-1", androidDevice(), "10.0.0.9", "refresh-2")
	require.NoError(t, err)

	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, device.Fingerprint(androidDevice()), sess.DeviceFingerprint)
}

func TestRefreshTokenSurvivesEmptyRelogin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	_, err = s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "")
	require.NoError(t, err)

	tok, err := s.RefreshToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", tok)
}

func TestUpdateRefreshTokenRotates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	rotated, err := s.UpdateRefreshToken(ctx, "user-1", "refresh-2")
	require.NoError(t, err)
	assert.True(t, rotated)

	tok, err := s.RefreshToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", tok)
}

func TestUpdateRefreshTokenDoesNotResurrect(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)
	require.True(t, s.Revoke(ctx, "user-1", "manual_logout"))

	rotated, err := s.UpdateRefreshToken(ctx, "user-1", "refresh-2")
	require.NoError(t, err)
	assert.False(t, rotated)

	// No ghost record came back; the next validation still reports the
	// session as gone.
	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, sess)

	v := s.Validate(ctx, "user-1", iosDevice())
	assert.Equal(t, ReasonNotFound, v.Reason)
}

func TestValidateUnknownUser(t *testing.T) {
	s, _ := newTestStore(t)

	v := s.Validate(context.Background(), "nobody", iosDevice())
	assert.False(t, v.IsValid)
	assert.Equal(t, ReasonNotFound, v.Reason)
}

func TestValidateDeviceMismatchRevokes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	v := s.Validate(ctx, "user-1", androidDevice())
	assert.False(t, v.IsValid)
	assert.Equal(t, ReasonDeviceMismatch, v.Reason)
	assert.True(t, v.SessionRevoked)

	// The session is gone; a retry from the original device fails too.
	v = s.Validate(ctx, "user-1", iosDevice())
	assert.Equal(t, ReasonNotFound, v.Reason)
}

func TestValidateActivityTimeoutRevokes(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	*clock = clock.Add(31 * time.Minute)

	v := s.Validate(ctx, "user-1", iosDevice())
	assert.False(t, v.IsValid)
	assert.Equal(t, ReasonActivityTimeout, v.Reason)

	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestValidateSuccess(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	*clock = clock.Add(29 * time.Minute)

	v := s.Validate(ctx, "user-1", iosDevice())
	require.True(t, v.IsValid)
	require.NotNil(t, v.Session)
	assert.Equal(t, "user-1", v.Session.UserID)
}

func TestIsExpiredByActivityBoundary(t *testing.T) {
	s, clock := newTestStore(t)
	start := *clock

	// Exactly at the threshold the session is still alive.
	*clock = start.Add(30 * time.Minute)
	assert.False(t, s.IsExpiredByActivity(start))

	*clock = start.Add(30*time.Minute + time.Second)
	assert.True(t, s.IsExpiredByActivity(start))
}

func TestUpdateActivitySlidesWindow(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	*clock = clock.Add(25 * time.Minute)
	updated, err := s.UpdateActivity(ctx, "user-1", "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, updated)

	// Another 25 minutes is fine because the window slid.
	*clock = clock.Add(25 * time.Minute)
	v := s.Validate(ctx, "user-1", iosDevice())
	assert.True(t, v.IsValid)
}

func TestUpdateActivityDoesNotResurrect(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)
	require.True(t, s.Revoke(ctx, "user-1", "manual_logout"))

	updated, err := s.UpdateActivity(ctx, "user-1", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, updated)

	sess, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "refresh-1")
	require.NoError(t, err)

	assert.True(t, s.Revoke(ctx, "user-1", "manual_logout"))
	assert.False(t, s.Revoke(ctx, "user-1", "manual_logout"))
}

func TestCleanupExpiredSweepsIdleSessions(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "idle-user", iosDevice(), "10.0.0.1", "r1")
	require.NoError(t, err)

	*clock = clock.Add(20 * time.Minute)
	_, err = s.CreateOrUpdate(ctx, "fresh-user", androidDevice(), "10.0.0.2", "r2")
	require.NoError(t, err)

	*clock = clock.Add(15 * time.Minute)
	cleaned, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	sess, err := s.Get(ctx, "idle-user")
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = s.Get(ctx, "fresh-user")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestSessionStats(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "idle-user", iosDevice(), "10.0.0.1", "r1")
	require.NoError(t, err)

	*clock = clock.Add(31 * time.Minute)
	_, err = s.CreateOrUpdate(ctx, "fresh-user", androidDevice(), "10.0.0.2", "r2")
	require.NoError(t, err)

	stats, err := s.SessionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)
}

func TestFindByFingerprintAndIP(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOrUpdate(ctx, "user-1", iosDevice(), "10.0.0.1", "r1")
	require.NoError(t, err)
	_, err = s.CreateOrUpdate(ctx, "user-2", androidDevice(), "10.0.0.1", "r2")
	require.NoError(t, err)

	sess, err := s.FindByFingerprint(ctx, device.Fingerprint(iosDevice()))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.UserID)

	none, err := s.FindByFingerprint(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	matches, err := s.FindByIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
