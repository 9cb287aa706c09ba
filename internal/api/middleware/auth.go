// Package middleware holds the gin middleware shared by both services.
package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orastack/taskboard-backend/internal/auth"
	"github.com/orastack/taskboard-backend/internal/models"
	"github.com/orastack/taskboard-backend/internal/service"
)

// Context keys set by Auth.
const (
	CtxUserID    = "userID"
	CtxUserEmail = "userEmail"
	CtxUserName  = "userName"
	CtxIsService = "isService"
)

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Success: false,
		Error: models.ErrorBody{
			Code:    service.CodeUnauthorized,
			Message: message,
		},
	})
	c.Abort()
}

// extractToken reads the bearer token, falling back to the token cookie.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie, err := c.Cookie("token"); err == nil {
		return cookie
	}
	return ""
}

// Auth validates the bearer token (header or cookie) and sets the caller's
// identity on the context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			unauthorized(c, "authorization required")
			return
		}

		claims, err := auth.ParseToken(secret, tokenString)
		if err != nil {
			log.Printf("❌ [Auth] Invalid token - Path: %s, Error: %v", c.Request.URL.Path, err)
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUserEmail, claims.Email)
		c.Set(CtxUserName, claims.Name)
		c.Set(CtxIsService, claims.Service)
		c.Next()
	}
}

// RequireService gates internal endpoints to service-minted tokens.
func RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxIsService) {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Success: false,
				Error: models.ErrorBody{
					Code:    service.CodeForbidden,
					Message: "service token required",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's id from the context.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}
