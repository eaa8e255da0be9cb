package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolboard/server/common/transport/httpresp"
)

const (
	ContextAccessToken = "auth_access_token"
	ContextEmail       = "auth_email"
	ContextSessionID   = "auth_session_id"
)

type tokenAuth interface {
	ParseAuthContext(token string) (email, sessionID string, err error)
}

// BearerToken reads the Authorization header, falling back to the
// access_token query parameter that browsers must use for websockets.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
			return
		}
		email, sessionID, err := auth.ParseAuthContext(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
			return
		}
		c.Set(ContextAccessToken, token)
		c.Set(ContextEmail, email)
		c.Set(ContextSessionID, sessionID)
		c.Next()
	}
}

func Email(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}
