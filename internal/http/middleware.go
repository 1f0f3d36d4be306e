package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// Context keys set by the auth middleware.
const (
	ctxAccountID   = "accountID"
	ctxAccountRole = "accountRole"
)

// bearerToken extracts the session token from the access cookie or the
// Authorization header. Cookie wins so browser sessions survive stale
// headers left by API clients.
func bearerToken(c *gin.Context) string {
	if cookie, errCookie := c.Cookie(accessCookie); errCookie == nil {
		if token := strings.TrimSpace(cookie); token != "" {
			return token
		}
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthRequired validates the session token and loads the account into the
// request context. Requests without a valid, enabled account are rejected.
func AuthRequired(sessions *security.Sessions, store *accounts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, errParse := sessions.ParseAccess(token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		account, errFind := store.GetByID(c.Request.Context(), claims.AccountID)
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		if account.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		c.Set(ctxAccountID, account.ID)
		c.Set(ctxAccountRole, account.Role)
		c.Next()
	}
}

// OptionalAuth loads the account into context when a valid session token is
// present but lets anonymous requests through. The WeChat authorize and
// callback endpoints use it: login and register are anonymous, bind needs
// the signed-in account.
func OptionalAuth(sessions *security.Sessions, store *accounts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, errParse := sessions.ParseAccess(token)
		if errParse != nil {
			c.Next()
			return
		}
		account, errFind := store.GetByID(c.Request.Context(), claims.AccountID)
		if errFind != nil || account.Disabled {
			c.Next()
			return
		}
		c.Set(ctxAccountID, account.ID)
		c.Set(ctxAccountRole, account.Role)
		c.Next()
	}
}

// RequireRole rejects accounts whose role does not satisfy required.
// An account with role "both" passes either check. Must run after
// AuthRequired.
func RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !models.RoleAllows(currentRole(c), required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": required + " role required"})
			return
		}
		c.Next()
	}
}

// currentAccountID returns the authenticated account ID, or 0.
func currentAccountID(c *gin.Context) uint64 {
	val, exists := c.Get(ctxAccountID)
	if !exists {
		return 0
	}
	id, ok := val.(uint64)
	if !ok {
		return 0
	}
	return id
}

// currentRole returns the authenticated account role, or "".
func currentRole(c *gin.Context) string {
	val, exists := c.Get(ctxAccountRole)
	if !exists {
		return ""
	}
	role, ok := val.(string)
	if !ok {
		return ""
	}
	return role
}
