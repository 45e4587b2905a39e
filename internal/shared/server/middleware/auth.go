package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/shared/auth"
	"invoicing-backend/internal/shared/server/respond"
)

const (
	userIDKey = "userId"
	claimsKey = "claims"
	tenantKey = "tenant"
)

// Auth validates bearer JWTs and stores the caller's claims in context.
func Auth(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" || signer == nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := signer.Verify(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, claims.Sub)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireTenant rejects callers whose claims do not grant the tenant named by
// the route parameter param.
func RequireTenant(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.ToLower(strings.TrimSpace(c.Param(param)))
		claims, ok := ClaimsFromContext(c)
		if !ok || !claims.HasTenant(slug) {
			respond.Error(c, http.StatusForbidden, "forbidden", "tenant access denied", nil)
			return
		}
		c.Set(tenantKey, slug)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userIDKey)
}

// ClaimsFromContext fetches the verified claims set by the auth middleware.
func ClaimsFromContext(c *gin.Context) (auth.Claims, bool) {
	if c == nil {
		return auth.Claims{}, false
	}
	val, ok := c.Get(claimsKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := val.(auth.Claims)
	return claims, ok
}

// TenantFromContext returns the tenant slug authorized by RequireTenant.
func TenantFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(tenantKey)
}
