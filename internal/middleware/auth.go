package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/auth"
)

const (
	// userIDKey is the gin context key for the authenticated user ID.
	userIDKey = "auth.user_id"
	// emailKey is the gin context key for the authenticated user's email.
	emailKey = "auth.email"
)

// UserID extracts the authenticated user ID from the request context.
// Returns empty string if the request is unauthenticated.
func UserID(c *gin.Context) string {
	id, _ := c.Value(userIDKey).(string)
	return id
}

// Email extracts the authenticated user's email from the request context.
func Email(c *gin.Context) string {
	email, _ := c.Value(emailKey).(string)
	return email
}

// RequireAuth validates the bearer token and aborts unauthenticated
// requests. On success the user ID and email are available through UserID
// and Email.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromHeader(c, jwtManager)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(emailKey, claims.Email)
		c.Next()
	}
}

// OptionalAuth attaches user identity when a valid bearer token is present
// but lets anonymous requests through. Used on the sync path, where the
// actor is attributed when known and anonymous otherwise.
func OptionalAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := claimsFromHeader(c, jwtManager); err == nil {
			c.Set(userIDKey, claims.UserID)
			c.Set(emailKey, claims.Email)
		}
		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, jwtManager *auth.JWTManager) (*auth.Claims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}
	return jwtManager.Validate(parts[1])
}
