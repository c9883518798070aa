// internal/pkg/device/service.go
package device

import (
	"context"
	"fmt"
	"time"

	"topluluk-service/internal/pkg/kv"

	"go.uber.org/zap"
)

const (
	devicePrefix      = "device:"
	userDevicesPrefix = "user_devices:"

	// Trusted devices expire unless refreshed by continued use.
	trustedDeviceDuration = 30 * 24 * time.Hour
)

// Record is a known device, keyed by fingerprint.
type Record struct {
	Fingerprint    string
	UserID         string
	Platform       string
	Model          string
	Version        string
	UserAgent      string
	RegisteredAt   string
	LastSeenAt     string
	RegistrationIP string
	LastSeenIP     string
	IsTrusted      bool
	TrustLevel     string
}

// NewDeviceCheck is the result of a known-device membership test.
type NewDeviceCheck struct {
	IsNew      bool
	KnownCount int
}

// Registration is returned after a device is persisted as trusted.
type Registration struct {
	Fingerprint string
	TrustLevel  string
}

// TrustService tracks known and trusted devices per user.
type TrustService struct {
	store  kv.Store
	logger *zap.Logger
}

func NewTrustService(store kv.Store, logger *zap.Logger) *TrustService {
	return &TrustService{store: store, logger: logger}
}

// IsNewDevice tests the fingerprint against the user's known-device
// set. A storage error fails open toward "new": unknown state gets
// higher scrutiny, never implicit trust.
func (s *TrustService) IsNewDevice(ctx context.Context, userID, fingerprint string) NewDeviceCheck {
	known, err := s.store.SMembers(ctx, userDevicesPrefix+userID)
	if err != nil {
		s.logger.Error("failed to read known devices, treating as new",
			zap.String("userId", userID),
			zap.Error(err))
		return NewDeviceCheck{IsNew: true}
	}

	for _, fp := range known {
		if fp == fingerprint {
			return NewDeviceCheck{IsNew: false, KnownCount: len(known)}
		}
	}
	return NewDeviceCheck{IsNew: true, KnownCount: len(known)}
}

// RegisterDevice persists the device as trusted and adds it to the
// user's device set. Callers gate this on the risk level.
func (s *TrustService) RegisterDevice(ctx context.Context, userID string, info Info, ipAddress string) (Registration, error) {
	fingerprint := Fingerprint(info)
	now := time.Now().UTC().Format(time.RFC3339)

	fields := map[string]string{
		"fingerprint":    fingerprint,
		"userId":         userID,
		"platform":       info.Platform,
		"model":          info.Model,
		"version":        info.Version,
		"userAgent":      info.UserAgent,
		"registeredAt":   now,
		"lastSeenAt":     now,
		"registrationIP": ipAddress,
		"lastSeenIP":     ipAddress,
		"isTrusted":      "true",
		"trustLevel":     "high",
	}

	deviceKey := devicePrefix + fingerprint
	if err := s.store.HSet(ctx, deviceKey, fields); err != nil {
		return Registration{}, fmt.Errorf("failed to register device: %w", err)
	}
	if err := s.store.Expire(ctx, deviceKey, trustedDeviceDuration); err != nil {
		return Registration{}, fmt.Errorf("failed to set device trust TTL: %w", err)
	}

	userKey := userDevicesPrefix + userID
	if err := s.store.SAdd(ctx, userKey, fingerprint); err != nil {
		return Registration{}, fmt.Errorf("failed to add device to user set: %w", err)
	}
	if err := s.store.Expire(ctx, userKey, trustedDeviceDuration); err != nil {
		return Registration{}, fmt.Errorf("failed to set device set TTL: %w", err)
	}

	s.logger.Info("device registered",
		zap.String("userId", userID),
		zap.String("fingerprint", fingerprint),
		zap.String("platform", info.Platform),
		zap.String("model", info.Model))

	return Registration{Fingerprint: fingerprint, TrustLevel: "high"}, nil
}

// UpdateLastSeen refreshes the device record and its trust TTL.
func (s *TrustService) UpdateLastSeen(ctx context.Context, fingerprint, ipAddress string) error {
	deviceKey := devicePrefix + fingerprint
	fields := map[string]string{
		"lastSeenAt": time.Now().UTC().Format(time.RFC3339),
		"lastSeenIP": ipAddress,
	}
	if err := s.store.HSet(ctx, deviceKey, fields); err != nil {
		return fmt.Errorf("failed to update device last seen: %w", err)
	}
	return s.store.Expire(ctx, deviceKey, trustedDeviceDuration)
}

// UserDevices lists all known device records for the user.
func (s *TrustService) UserDevices(ctx context.Context, userID string) ([]Record, error) {
	fingerprints, err := s.store.SMembers(ctx, userDevicesPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device set: %w", err)
	}

	var devices []Record
	for _, fp := range fingerprints {
		fields, err := s.store.HGetAll(ctx, devicePrefix+fp)
		if err != nil || len(fields) == 0 {
			continue
		}
		devices = append(devices, recordFromFields(fields))
	}
	return devices, nil
}

// MarkUntrusted downgrades a device on a security signal.
func (s *TrustService) MarkUntrusted(ctx context.Context, fingerprint, reason string) error {
	fields := map[string]string{
		"isTrusted":       "false",
		"trustLevel":      "low",
		"untrustedAt":     time.Now().UTC().Format(time.RFC3339),
		"untrustedReason": reason,
	}
	if err := s.store.HSet(ctx, devicePrefix+fingerprint, fields); err != nil {
		return fmt.Errorf("failed to mark device untrusted: %w", err)
	}

	s.logger.Warn("device marked untrusted",
		zap.String("fingerprint", fingerprint),
		zap.String("reason", reason))
	return nil
}

// RevokeAllTrust marks every device of the user untrusted and returns
// how many were downgraded.
func (s *TrustService) RevokeAllTrust(ctx context.Context, userID, reason string) int {
	devices, err := s.UserDevices(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list devices for trust revocation",
			zap.String("userId", userID),
			zap.Error(err))
		return 0
	}

	revoked := 0
	for _, d := range devices {
		if err := s.MarkUntrusted(ctx, d.Fingerprint, reason); err == nil {
			revoked++
		}
	}

	s.logger.Warn("all user device trust revoked",
		zap.String("userId", userID),
		zap.Int("revoked", revoked),
		zap.String("reason", reason))
	return revoked
}

func recordFromFields(fields map[string]string) Record {
	return Record{
		Fingerprint:    fields["fingerprint"],
		UserID:         fields["userId"],
		Platform:       fields["platform"],
		Model:          fields["model"],
		Version:        fields["version"],
		UserAgent:      fields["userAgent"],
		RegisteredAt:   fields["registeredAt"],
		LastSeenAt:     fields["lastSeenAt"],
		RegistrationIP: fields["registrationIP"],
		LastSeenIP:     fields["lastSeenIP"],
		IsTrusted:      fields["isTrusted"] == "true",
		TrustLevel:     fields["trustLevel"],
	}
}
