// internal/pkg/device/fingerprint.go
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Info is the self-reported device attribute set. IP address is
// deliberately absent: an IP change must not change device identity.
type Info struct {
	Platform         string `json:"platform"`
	Model            string `json:"model"`
	Version          string `json:"version"`
	UserAgent        string `json:"userAgent,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	TimeZone         string `json:"timeZone,omitempty"`
	Language         string `json:"language,omitempty"`
}

type fingerprintCore struct {
	Platform string `json:"platform"`
	Model    string `json:"model"`
	Version  string `json:"version"`
}

type fingerprintEnhanced struct {
	Platform         string `json:"platform"`
	Model            string `json:"model"`
	Version          string `json:"version"`
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	TimeZone         string `json:"timeZone"`
	Language         string `json:"language"`
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Fingerprint derives the stable device identity from platform, model
// and version. Identical input always yields identical output.
func Fingerprint(info Info) string {
	core := fingerprintCore{
		Platform: orUnknown(info.Platform),
		Model:    orUnknown(info.Model),
		Version:  orUnknown(info.Version),
	}
	data, _ := json.Marshal(core)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// EnhancedFingerprint extends the core attributes with browser and
// display hints for a longer, more specific identity.
func EnhancedFingerprint(info Info) string {
	enhanced := fingerprintEnhanced{
		Platform:         orUnknown(info.Platform),
		Model:            orUnknown(info.Model),
		Version:          orUnknown(info.Version),
		UserAgent:        info.UserAgent,
		ScreenResolution: info.ScreenResolution,
		TimeZone:         info.TimeZone,
		Language:         info.Language,
	}
	data, _ := json.Marshal(enhanced)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:20]
}
