package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/session"
)

// SessionKey is the gin context key holding the resolved session.
const SessionKey = "session"

// TokenKey is the gin context key holding the raw bearer token, kept so
// a session can revoke itself.
const TokenKey = "session_token"

// Authenticate resolves the bearer token into a session and stores it in
// the request context. Requests without a valid token are rejected.
func Authenticate(store session.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":          "missing bearer token",
				"correlation_id": c.GetString("correlation_id"),
			})
			return
		}

		record, err := store.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":          "invalid or expired session",
					"correlation_id": c.GetString("correlation_id"),
				})
				return
			}
			logger.WithError(err).Error("Failed to resolve session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":          "session lookup failed",
				"correlation_id": c.GetString("correlation_id"),
			})
			return
		}

		c.Set(SessionKey, session.New(record))
		c.Set(TokenKey, token)
		c.Next()
	}
}

// SessionFrom extracts the authenticated session set by Authenticate.
func SessionFrom(c *gin.Context) *session.Session {
	value, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	s, _ := value.(*session.Session)
	return s
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
