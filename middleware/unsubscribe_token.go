package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SubscriberEmailKey is the context key set by UnsubscribeTokenMiddleware
const SubscriberEmailKey = "subscriber_email"

// TokenParser validates a signed unsubscribe token and returns its email
type TokenParser interface {
	Parse(token string) (string, error)
}

// UnsubscribeTokenMiddleware validates the ?token= of a one-click unsubscribe link
func UnsubscribeTokenMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "token query parameter is required",
			})
			return
		}

		email, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "This unsubscribe link is invalid or has expired",
			})
			return
		}

		c.Set(SubscriberEmailKey, email)
		c.Next()
	}
}
