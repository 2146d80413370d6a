package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
	sessionpkg "github.com/mx-space/diary/internal/pkg/session"
)

const (
	ContextKeySID     = "session_id"
	UnlockTokenHeader = "X-Diary-Token"
)

// SessionVerifier resolves an admin token to its live session.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*sessionpkg.Session, error)
}

// Auth returns a middleware that requires an admin token bound to a live session.
func Auth(sessions SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := ValidateToken(c.Request.Context(), sessions, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeySID, sess.ID)
		c.Next()
	}
}

// OptionalAuth marks the request as admin when a valid token is present, but does not block it.
func OptionalAuth(sessions SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, err := ValidateToken(c.Request.Context(), sessions, extractToken(c)); err == nil {
			c.Set(ContextKeySID, sess.ID)
		}
		c.Next()
	}
}

// ValidateToken checks rawToken and returns the session it belongs to.
func ValidateToken(ctx context.Context, sessions SessionVerifier, rawToken string) (*sessionpkg.Session, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return nil, errors.New("token is required")
	}
	return sessions.Verify(ctx, token)
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated returns true if the request carried a valid admin token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentSessionID(c) != ""
}

// UnlockToken returns the diary unlock token sent with the request, if any.
func UnlockToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(UnlockTokenHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("unlock"))
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
