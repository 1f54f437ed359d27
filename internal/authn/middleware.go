package authn

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sv2d/sv2d/internal/domain"
)

// RequireAuth returns gin middleware that accepts either a "Bearer <jwt>"
// Authorization header or an "X-Api-Key" header, populating the gin
// context with the authenticated key's permissions on success.
func (m *SessionManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-Api-Key"); raw != "" {
			if m.lookupAPIKey == nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "api key authentication unavailable"})
				c.Abort()
				return
			}
			key, ok := m.lookupAPIKey(HashSecret(raw))
			if !ok || key.Revoked {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or revoked api key"})
				c.Abort()
				return
			}
			c.Set("auth_kind", "api_key")
			c.Set("key_id", key.ID)
			c.Set("permissions", key.Permissions)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" || tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			c.Abort()
			return
		}

		claims, err := m.Validate(tokenString, time.Now())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		c.Set("auth_kind", "session")
		c.Set("key_id", claims.ApiKeyID)
		c.Set("permissions", claims.Permissions)
		c.Next()
	}
}

// RequirePermissionMiddleware returns gin middleware that 403s unless the
// authenticated request's permissions (set by RequireAuth) include perm.
func RequirePermissionMiddleware(perm domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, _ := c.Get("permissions")
		granted, _ := perms.([]domain.Permission)
		for _, p := range granted {
			if p == domain.PermAdminAccess || p == perm {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}
