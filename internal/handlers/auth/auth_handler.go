// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"
	"strings"

	"topluluk-service/internal/domain/auth"
	"topluluk-service/internal/middleware"
	"topluluk-service/internal/pkg/device"
	xerrors "topluluk-service/internal/pkg/errors"
	"topluluk-service/internal/pkg/response"
	authUsecase "topluluk-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Login ==========

// Login handles user login (public endpoint)
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	if req.Email == "" && req.Phone == "" {
		response.ValidationError(c, "email or phone is required", nil)
		return
	}

	req.IPAddress = c.ClientIP()
	if req.DeviceInfo.UserAgent == "" {
		req.DeviceInfo.UserAgent = c.GetHeader("User-Agent")
	}

	result, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		h.handleLoginError(c, req, err)
		return
	}

	response.Success(c, http.StatusOK, "login successful", result)
}

func (h *AuthHandler) handleLoginError(c *gin.Context, req auth.LoginRequest, err error) {
	var forbidden *xerrors.ForbiddenError
	if errors.As(err, &forbidden) {
		h.logger.Warn("login refused",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Any("details", forbidden.Details))
		response.Forbidden(c, forbidden.Message, forbidden.Details)
		return
	}

	if xerrors.Is(err, xerrors.ErrInvalidCredentials) {
		response.Error(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	h.logger.Error("login failed",
		zap.String("email", req.Email),
		zap.String("ip", req.IPAddress),
		zap.Error(err))
	response.Error(c, http.StatusInternalServerError, "login failed", nil)
}

// ========== Auth Probe ==========

type checkAuthRequest struct {
	Token      string      `json:"token"`
	DeviceInfo device.Info `json:"deviceInfo"`
}

// CheckAuth is the app-start probe. It always answers 200; the body
// carries the tagged verdict, including infrastructure trouble. Clients
// branch on reason codes, not HTTP status.
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	var req checkAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}
	if req.DeviceInfo.UserAgent == "" {
		req.DeviceInfo.UserAgent = c.GetHeader("User-Agent")
	}

	result := h.authService.CheckAuth(c.Request.Context(), token, req.DeviceInfo, c.ClientIP())
	c.JSON(http.StatusOK, result)
}

// ========== Refresh ==========

type refreshRequest struct {
	Token      string      `json:"token"`
	DeviceInfo device.Info `json:"deviceInfo"`
}

// Refresh exchanges a stale access token for a fresh one. The refresh
// token itself never crosses the wire; it lives in the session record.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		response.ValidationError(c, "token is required", nil)
		return
	}
	if req.DeviceInfo.UserAgent == "" {
		req.DeviceInfo.UserAgent = c.GetHeader("User-Agent")
	}

	result := h.authService.Refresh(c.Request.Context(), token, req.DeviceInfo, c.ClientIP())
	if !result.Success {
		response.Reason(c, http.StatusUnauthorized, "refresh failed", result.Reason, gin.H{
			"expired": result.Expired,
		})
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", result)
}

// ========== Logout ==========

// Logout revokes the caller's session (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	sessionID, _ := middleware.GetSessionID(c)

	revoked := h.authService.Logout(c.Request.Context(), userID)
	h.logger.Info("user logged out",
		zap.String("userId", userID),
		zap.String("sessionId", sessionID),
		zap.Bool("sessionRevoked", revoked))

	response.Success(c, http.StatusOK, "logout successful", gin.H{
		"sessionId":      sessionID,
		"sessionRevoked": revoked,
	})
}

// ========== Session Info ==========

// SessionInfo returns the caller's session summary (requires auth)
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	info, err := h.authService.SessionInfo(c.Request.Context(), userID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "no active session", nil)
			return
		}
		h.logger.Error("session info lookup failed",
			zap.String("userId", userID),
			zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load session", nil)
		return
	}

	response.Success(c, http.StatusOK, "session info", info)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
