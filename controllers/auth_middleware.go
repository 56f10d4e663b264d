package controllers

import (
	"net/http"
	"strings"

	"github.com/penelope/inbox/appctx"

	"github.com/gin-gonic/gin"
)

// IdentityContextKey is where AuthRequired stores the verified
// authn.Identity; RequireIdentity reads it back out.
const IdentityContextKey = "identity"

// AuthRequired generalizes the teacher's controllers.AuthRequired /
// AuthMiddleware: pull the bearer token, verify it through whichever
// authn.Provider main.go wired into the request context,
// and stash the resulting Identity for downstream handlers.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		provider := appctx.AuthProvider(c)
		if provider == nil {
			RespondError(c, "auth provider not configured", http.StatusInternalServerError)
			c.Abort()
			return
		}

		identity, err := provider.Verify(token)
		if err != nil {
			RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, identity)
		c.Next()
	}
}
