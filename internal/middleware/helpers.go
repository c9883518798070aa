// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetUserID gets the authenticated user ID from context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userId")
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok
}

// MustGetUserID gets the user ID from context or panics
func MustGetUserID(c *gin.Context) string {
	userID, exists := GetUserID(c)
	if !exists {
		panic("userId not found in context")
	}
	return userID
}

// GetSessionID gets the session ID from context
func GetSessionID(c *gin.Context) (string, bool) {
	sessionID, exists := c.Get("sessionId")
	if !exists {
		return "", false
	}

	id, ok := sessionID.(string)
	return id, ok
}
