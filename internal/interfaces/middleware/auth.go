package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/backend/pkg/auth"
)

// ContextKeyUser is the gin context key the authenticated session is stored under.
const ContextKeyUser = "user"

// RequireAuth is a middleware that validates JWT tokens
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "No authorization token provided",
				"code":    "UNAUTHORIZED",
				"data":    nil,
			})
			c.Abort()
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid authorization header format",
				"code":    "UNAUTHORIZED",
				"data":    nil,
			})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": err.Error(),
				"code":    "UNAUTHORIZED",
				"data":    nil,
			})
			c.Abort()
			return
		}

		c.Set(ContextKeyUser, claims.User)

		c.Next()
	}
}

// RequireAdmin checks if the user is an administrator
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userInterface, exists := c.Get(ContextKeyUser)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "User not authenticated",
				"code":    "UNAUTHORIZED",
				"data":    nil,
			})
			c.Abort()
			return
		}

		user := userInterface.(auth.UserSession)
		if !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{
				"message": "Only administrators can access this resource",
				"code":    "FORBIDDEN",
				"data":    nil,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Cors allows cross-origin requests with credentials.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
