// internal/pkg/token/claims.go
package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim. Access and refresh tokens
// are signed with independent secrets, so a token of one type never
// verifies as the other.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Reason codes for expected validation failures. These are part of the
// wire contract and must not change.
const (
	ReasonInvalidToken = "invalid_token"
	ReasonTokenExpired = "token_expired"
)

// Claims are the signed token claims. Tokens are capability references
// into the session store: possession alone is never sufficient, the
// bound session must still exist and match the device.
type Claims struct {
	UserID            string `json:"userId"`
	SessionID         string `json:"sessionId"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	TokenType         string `json:"type"`
	jwt.RegisteredClaims
}

// Info is the unverified view of a token, decoded without signature
// checking. It must never be treated as authentication.
type Info struct {
	UserID            string
	SessionID         string
	DeviceFingerprint string
	IssuedAt          int64
}

// Validation is the tagged result of a token check. Expected failure
// classes never surface as errors.
type Validation struct {
	IsValid bool
	Reason  string
	Expired bool
	Claims  *Claims
}
