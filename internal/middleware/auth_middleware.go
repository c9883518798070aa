// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"topluluk-service/internal/pkg/device"
	"topluluk-service/internal/pkg/response"
	"topluluk-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// Renewal travels out-of-band so the request that triggered it still
// completes with the token it presented.
const (
	HeaderNewAccessToken = "X-New-Access-Token"
	HeaderTokenRenewed   = "X-Token-Renewed"
)

type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth validates the access token and the session behind it on every
// request. A valid pass slides session activity and may attach a
// renewed access token in the response headers.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		result := m.authService.CheckAuth(c.Request.Context(), token, extractDeviceInfo(c), c.ClientIP())
		if !result.IsValid {
			response.Reason(c, http.StatusUnauthorized, "authentication failed", result.Reason, gin.H{
				"expired":        result.Expired,
				"sessionRevoked": result.SessionRevoked,
				"clearToken":     result.ClearToken,
			})
			return
		}

		if result.NewAccessToken != "" {
			c.Header(HeaderNewAccessToken, result.NewAccessToken)
			c.Header(HeaderTokenRenewed, "true")
		}

		c.Set("userId", result.UserID)
		c.Set("sessionId", result.SessionID)

		c.Next()
	}
}

// extractToken extracts the Bearer token from the Authorization header.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

// extractDeviceInfo reads the self-reported device attributes from the
// request headers. Missing attributes stay empty; the fingerprint layer
// substitutes its own defaults.
func extractDeviceInfo(c *gin.Context) device.Info {
	return device.Info{
		Platform:  c.GetHeader("X-Device-Platform"),
		Model:     c.GetHeader("X-Device-Model"),
		Version:   c.GetHeader("X-Device-Version"),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
