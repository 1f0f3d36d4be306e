package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/correlation"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/gateway"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// WeChatHandler drives the WeChat OAuth endpoints.
type WeChatHandler struct {
	flow     *flow.SocialFlow
	sessions *security.Sessions
	audit    *audit.Recorder
}

// NewWeChatHandler constructs a WeChatHandler.
func NewWeChatHandler(socialFlow *flow.SocialFlow, sessions *security.Sessions, recorder *audit.Recorder) *WeChatHandler {
	return &WeChatHandler{flow: socialFlow, sessions: sessions, audit: recorder}
}

// auditOutcome maps a completed social outcome onto the event trail.
func (h *WeChatHandler) auditOutcome(c *gin.Context, outcome flow.Outcome) {
	if !outcome.Completed() {
		return
	}
	event := audit.Event{Provider: models.ProviderWeChat, ClientIP: c.ClientIP()}
	switch {
	case outcome.Binding != nil:
		event.Event = models.AuditBind
		event.AccountID = outcome.Binding.AccountID
	case outcome.Account != nil && outcome.NewAccount:
		event.Event = models.AuditRegister
		event.AccountID = outcome.Account.ID
	case outcome.Account != nil:
		event.Event = models.AuditLogin
		event.AccountID = outcome.Account.ID
	default:
		return
	}
	h.audit.Record(event)
}

// Authorize starts an OAuth round trip and redirects to the provider.
// ?purpose=login|register|bind (default login); register may carry ?role=.
// Bind requires a signed-in session.
func (h *WeChatHandler) Authorize(c *gin.Context) {
	purpose := strings.TrimSpace(c.Query("purpose"))
	if purpose == "" {
		purpose = correlation.PurposeLogin
	}

	redirectURL, errStart := h.flow.Start(c.Request.Context(), flow.StartParams{
		Purpose:   purpose,
		AccountID: currentAccountID(c),
		Role:      strings.TrimSpace(c.Query("role")),
	})
	if errors.Is(errStart, flow.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errStart.Error()})
		return
	}
	if errors.Is(errStart, gateway.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat login is not configured"})
		return
	}
	if errStart != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start wechat authorization"})
		return
	}
	c.Redirect(http.StatusFound, redirectURL)
}

// Callback receives the provider redirect and finishes the pending flow.
func (h *WeChatHandler) Callback(c *gin.Context) {
	outcome := h.flow.HandleCallback(c.Request.Context(), flow.CallbackParams{
		Code:            c.Query("code"),
		State:           c.Query("state"),
		ProviderError:   c.Query("error"),
		CallerAccountID: currentAccountID(c),
	})
	h.auditOutcome(c, outcome)
	writeSocialOutcome(c, h.sessions, outcome)
}

// completeRegisterRequest defines the body of the role-selection POST.
type completeRegisterRequest struct {
	RegistrationToken string `json:"registration_token"`
	Role              string `json:"role"`
	AgreeTerms        bool   `json:"agree_terms"`
}

// CompleteRegister finishes a registration that was parked at the callback
// waiting for a role choice.
func (h *WeChatHandler) CompleteRegister(c *gin.Context) {
	var body completeRegisterRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	outcome, errComplete := h.flow.CompleteRegister(c.Request.Context(), flow.CompleteRegisterParams{
		RegistrationToken: strings.TrimSpace(body.RegistrationToken),
		Role:              body.Role,
		AgreeTerms:        body.AgreeTerms,
	})
	if errors.Is(errComplete, flow.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errComplete.Error()})
		return
	}
	if errComplete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	h.auditOutcome(c, outcome)
	writeSocialOutcome(c, h.sessions, outcome)
}
