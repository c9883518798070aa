// internal/pkg/token/authority.go
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the signing secrets and lifetimes for both token
// classes. RenewalAge must stay strictly below AccessTTL so renewal
// happens with a safety margin before expiry.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RenewalAge    time.Duration
}

// Authority issues and validates session-bound tokens. It is stateless:
// revocation happens in the session store, not here.
type Authority struct {
	cfg Config
}

func NewAuthority(cfg Config) (*Authority, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token authority requires both access and refresh secrets")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.RenewalAge <= 0 || cfg.RenewalAge >= cfg.AccessTTL {
		cfg.RenewalAge = cfg.AccessTTL - 5*time.Minute
	}
	return &Authority{cfg: cfg}, nil
}

// Subject identifies the session a token is bound to.
type Subject struct {
	UserID            string
	SessionID         string
	DeviceFingerprint string
}

// Issued is the wire shape of a freshly minted token.
type Issued struct {
	Token     string
	TokenType string
	ExpiresIn int64 // seconds
}

// IssueAccessToken mints a short-lived access token for the subject.
func (a *Authority) IssueAccessToken(sub Subject) (Issued, error) {
	return a.issue(sub, TypeAccess, a.cfg.AccessSecret, a.cfg.AccessTTL)
}

// IssueRefreshToken mints the longer-lived refresh token. The result is
// stored server-side in the session and never returned to clients.
func (a *Authority) IssueRefreshToken(sub Subject) (Issued, error) {
	return a.issue(sub, TypeRefresh, a.cfg.RefreshSecret, a.cfg.RefreshTTL)
}

func (a *Authority) issue(sub Subject, tokenType, secret string, ttl time.Duration) (Issued, error) {
	if sub.UserID == "" || sub.SessionID == "" {
		return Issued{}, fmt.Errorf("cannot issue %s token without a session", tokenType)
	}

	now := time.Now()
	claims := &Claims{
		UserID:            sub.UserID,
		SessionID:         sub.SessionID,
		DeviceFingerprint: sub.DeviceFingerprint,
		TokenType:         tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			Subject:   sub.UserID,
			Audience:  jwt.ClaimStrings{a.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Issued{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return Issued{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(ttl.Seconds()),
	}, nil
}

// ValidateAccessToken verifies signature, issuer, audience and type of
// an access token. Expected failures come back as a tagged result.
func (a *Authority) ValidateAccessToken(tokenString string) Validation {
	return a.validate(tokenString, TypeAccess, a.cfg.AccessSecret)
}

// ValidateRefreshToken does the same for refresh tokens.
func (a *Authority) ValidateRefreshToken(tokenString string) Validation {
	return a.validate(tokenString, TypeRefresh, a.cfg.RefreshSecret)
}

func (a *Authority) validate(tokenString, wantType, secret string) Validation {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithAudience(a.cfg.Audience),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Validation{Reason: ReasonTokenExpired, Expired: true}
		}
		return Validation{Reason: ReasonInvalidToken}
	}

	if !tok.Valid || claims.TokenType != wantType {
		return Validation{Reason: ReasonInvalidToken}
	}

	return Validation{IsValid: true, Claims: claims}
}

// ExtractInfo decodes claims without verifying the signature. It exists
// so callers can look up the session before a full validation pass and
// must not be used as authentication.
func (a *Authority) ExtractInfo(tokenString string) *Info {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	info := &Info{
		UserID:            claims.UserID,
		SessionID:         claims.SessionID,
		DeviceFingerprint: claims.DeviceFingerprint,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Unix()
	}
	return info
}

// ShouldRenew reports whether an access token is old enough to renew.
// Renewal never invalidates the token being validated in the same call;
// the fresh token travels back out-of-band and the old one stays valid
// until its own expiry.
func (a *Authority) ShouldRenew(claims *Claims) bool {
	if claims == nil || claims.IssuedAt == nil {
		return false
	}
	return time.Since(claims.IssuedAt.Time) >= a.cfg.RenewalAge
}
