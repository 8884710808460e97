package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	SubjectKey          = "auth_subject"
	RoleKey             = "auth_role"

	// SystemSubject is attributed when authentication is disabled.
	SystemSubject = "system"
)

// Middleware creates a Gin middleware for JWT authentication. When enabled
// is false every request passes through attributed to the system subject,
// matching development deployments without an identity provider.
func Middleware(jwtManager *JWTManager, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Set(SubjectKey, SystemSubject)
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "AUTHENTICATION_ERROR",
					"message":    "missing authorization header",
					"request_id": c.GetString("request_id"),
				},
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "AUTHENTICATION_ERROR",
					"message":    "invalid authorization header format",
					"request_id": c.GetString("request_id"),
				},
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				message = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "AUTHENTICATION_ERROR",
					"message":    message,
					"request_id": c.GetString("request_id"),
				},
			})
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// RoleMiddleware creates a Gin middleware for role-based access control
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"code":       "AUTHORIZATION_ERROR",
				"message":    "insufficient permissions",
				"request_id": c.GetString("request_id"),
			},
		})
	}
}

// Subject returns the authenticated subject, or "unknown" when absent.
func Subject(c *gin.Context) string {
	if subject := c.GetString(SubjectKey); subject != "" {
		return subject
	}
	return "unknown"
}

// APIActor formats the ingest-path audit actor for the subject.
func APIActor(c *gin.Context) string {
	return "api:" + Subject(c)
}

// AnalystActor formats the review-path audit actor for the subject.
func AnalystActor(c *gin.Context) string {
	return "analyst:" + Subject(c)
}
