package middleware

import (
	"errors"
	"strings"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// JWTAuth JWT authentication middleware
func JWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			common.ErrorResponse(c, common.ErrMissingCaller)
			c.Abort()
			return
		}
		if !authenticate(c, jwtManager, token) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalJWTAuth sets the caller when a valid token is present and lets
// anonymous requests through. A malformed or expired token is still rejected.
func OptionalJWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if ok && !authenticate(c, jwtManager, token) {
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticate verifies token and stores the caller, writing the error response on failure
func authenticate(c *gin.Context, jwtManager *jwt.Manager, token string) bool {
	claims, err := jwtManager.VerifyToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			common.ErrorResponse(c, common.ErrExpiredToken)
		} else {
			common.ErrorResponse(c, common.ErrInvalidToken)
		}
		return false
	}

	c.Set("userID", claims.GetUserID())
	c.Set("nickname", claims.GetUserName())
	return true
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get("userID")
	if !exists {
		return ""
	}
	if str, ok := userID.(string); ok {
		return str
	}
	return ""
}

// GetNickname extracts nickname from context
func GetNickname(c *gin.Context) string {
	nickname, exists := c.Get("nickname")
	if !exists {
		return ""
	}
	if str, ok := nickname.(string); ok {
		return str
	}
	return ""
}
