// Package http wires the identity service's gin routes: password and
// WeChat authentication, real-name verification, identity bindings and
// profiles.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// Deps carries the collaborators the HTTP layer serves. Audit may be nil;
// recording is skipped then.
type Deps struct {
	Accounts *accounts.Store
	Ledger   *identity.Ledger
	Sessions *security.Sessions
	Social   *flow.SocialFlow
	Verify   *flow.VerifyFlow
	Audit    *audit.Recorder
}

// RegisterRoutes mounts the full API surface on the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	authHandler := NewAuthHandler(deps.Accounts, deps.Ledger, deps.Sessions, deps.Audit)
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", AuthRequired(deps.Sessions, deps.Accounts), authHandler.Logout)

	// The WeChat endpoints serve both anonymous flows (login, register)
	// and the signed-in bind flow, so auth is optional here and purpose
	// checks happen in the flow.
	wechatHandler := NewWeChatHandler(deps.Social, deps.Sessions, deps.Audit)
	wechat := auth.Group("/wechat", OptionalAuth(deps.Sessions, deps.Accounts))
	wechat.GET("/authorize", wechatHandler.Authorize)
	wechat.GET("/callback", wechatHandler.Callback)
	wechat.POST("/register", wechatHandler.CompleteRegister)

	authed := v1.Group("", AuthRequired(deps.Sessions, deps.Accounts))

	verifyHandler := NewVerifyHandler(deps.Verify, deps.Audit)
	authed.GET("/verify", verifyHandler.Status)
	authed.POST("/verify", verifyHandler.Submit)
	authed.GET("/verify/callback", verifyHandler.Callback)

	identityHandler := NewIdentityHandler(deps.Ledger, deps.Social, deps.Audit)
	authed.GET("/identities", identityHandler.List)
	authed.DELETE("/identities/:id", identityHandler.Unbind)

	auditHandler := NewAuditHandler(deps.Audit)
	authed.GET("/audit", auditHandler.List)

	profileHandler := NewProfileHandler(deps.Accounts, deps.Ledger)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile", profileHandler.Update)

	solver := authed.Group("", RequireRole(models.RoleSolver))
	solver.GET("/profile/solver", profileHandler.SolverGet)
	solver.PUT("/profile/solver", profileHandler.SolverUpdate)

	mfaHandler := NewMFAHandler(deps.Accounts, deps.Audit)
	mfa := authed.Group("/mfa")
	mfa.POST("/totp/prepare", mfaHandler.PrepareTOTP)
	mfa.POST("/totp/confirm", mfaHandler.ConfirmTOTP)
	mfa.POST("/totp/disable", mfaHandler.DisableTOTP)

	v1.GET("/users/:id", profileHandler.Public)
}
