package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joshu-sajeev/notifyqueue/common"
)

// TokenHeader is checked when the token query parameter is absent.
const TokenHeader = "X-Cron-Token"

// RequireToken guards a route with a shared secret passed as ?token= or in
// the X-Cron-Token header. An empty expected token locks the route entirely.
func RequireToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Query("token")
		if got == "" {
			got = c.GetHeader(TokenHeader)
		}

		if expected == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.Error(common.Errf(http.StatusForbidden, "forbidden"))
			c.Abort()
			return
		}

		c.Next()
	}
}
