package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
	"github.com/vibepatch/identity/internal/util"
)

// Cookie names for the session token pair.
const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// setSessionCookies stores the token pair in http-only cookies sized to the
// token lifetimes.
func setSessionCookies(c *gin.Context, sessions *security.Sessions, pair security.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, pair.AccessToken, int(sessions.AccessExpiry().Seconds()), "/", "", false, true)
	c.SetCookie(refreshCookie, pair.RefreshToken, int(sessions.RefreshExpiry().Seconds()), "/", "", false, true)
}

// clearSessionCookies expires both session cookies.
func clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, "", -1, "/", "", false, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", false, true)
}

// outcomeStatusCode maps a flow outcome to its HTTP status.
func outcomeStatusCode(outcome flow.Outcome) int {
	switch outcome.Status {
	case flow.StatusCompleted, flow.StatusRegistrationRequired, flow.StatusNotPassed:
		return http.StatusOK
	case flow.StatusExpiredState:
		return http.StatusUnauthorized
	case flow.StatusMismatch, flow.StatusDuplicateBinding:
		return http.StatusConflict
	case flow.StatusAccountDisabled:
		return http.StatusForbidden
	case flow.StatusProviderRejected, flow.StatusTransportFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeSocialOutcome renders a social flow outcome. Completed sign-ins set
// session cookies and return the account; registration handoffs return the
// prefill payload; everything else is an error body with the user-safe
// reason.
func writeSocialOutcome(c *gin.Context, sessions *security.Sessions, outcome flow.Outcome) {
	switch outcome.Status {
	case flow.StatusCompleted:
		body := gin.H{"status": string(outcome.Status)}
		if outcome.Session != nil {
			setSessionCookies(c, sessions, *outcome.Session)
			body["session"] = outcome.Session
		}
		if outcome.Account != nil {
			body["account"] = accountResponse(outcome.Account)
			body["new_account"] = outcome.NewAccount
		}
		if outcome.Binding != nil {
			body["binding"] = bindingResponse(outcome.Binding)
		}
		c.JSON(http.StatusOK, body)
	case flow.StatusRegistrationRequired:
		c.JSON(http.StatusOK, gin.H{
			"status":       string(outcome.Status),
			"registration": outcome.Registration,
		})
	default:
		c.JSON(outcomeStatusCode(outcome), gin.H{
			"status": string(outcome.Status),
			"error":  outcome.Reason,
		})
	}
}

// accountResponse shapes an account for its owner. Credentials and raw
// verification data never leave the server.
func accountResponse(account *models.Account) gin.H {
	body := gin.H{
		"id":           account.ID,
		"nickname":     account.Nickname,
		"role":         account.Role,
		"avatar_url":   account.AvatarURL,
		"verified":     account.Verified,
		"totp_enabled": account.TOTPSecret != "",
		"created_at":   account.CreatedAt,
	}
	if account.Email != nil {
		body["email"] = *account.Email
	}
	if account.Phone != "" {
		body["phone"] = account.Phone
	}
	if account.Bio != "" {
		body["bio"] = account.Bio
	}
	if account.Verified {
		body["real_name"] = flow.MaskName(account.RealName)
	}
	return body
}

// bindingResponse shapes an identity binding. The provider subject is
// masked; its full value is only meaningful to the provider anyway.
func bindingResponse(binding *models.IdentityBinding) gin.H {
	return gin.H{
		"id":         binding.ID,
		"provider":   binding.Provider,
		"subject":    util.MaskToken(binding.SubjectID),
		"created_at": binding.CreatedAt,
	}
}
