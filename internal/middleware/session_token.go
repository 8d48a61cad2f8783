package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for session token claims.
	ContextKeyClaims = "claims"
	// ContextKeySessionID is the Gin context key for the parsed :id param.
	ContextKeySessionID = "session_id"
)

// RequireSessionToken validates the per-interview token against the :id
// route param. The token comes from the Authorization header or, for
// WebSocket and EventSource clients, the ?token query param.
func RequireSessionToken(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		tokenStr := extractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := tokens.ValidateFor(tokenStr, sessionID)
		if err != nil {
			if errors.Is(err, service.ErrTokenSession) {
				response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeySessionID, sessionID)
		c.Next()
	}
}

// GetClaims retrieves the session token claims from the Gin context.
func GetClaims(c *gin.Context) *service.SessionClaims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetSessionID retrieves the authenticated session id.
func GetSessionID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get(ContextKeySessionID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}
