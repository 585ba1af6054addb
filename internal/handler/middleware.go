package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"LegalWise/internal/auth"
)

const identityKey = "identity"

// AuthMiddleware verifies the bearer token and stores the resulting
// identity on the request context. Identity and role always come from the
// verified token, never from request parameters.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		ident, err := verifier.Verify(token)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// IdentityFrom extracts the verified identity set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	ident, ok := v.(*auth.Identity)
	return ident, ok
}
