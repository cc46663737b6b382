package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"lifesign/pkg/models"

	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware guards ingestion routes with a shared bearer token.
// Comparison is constant time so the token cannot be recovered byte by byte.
func ServiceAuthMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing or malformed authorization header"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid service token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
