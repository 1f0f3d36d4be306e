package http

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// minPasswordLength is the shortest accepted password.
const minPasswordLength = 8

// AuthHandler handles email/password authentication and session renewal.
type AuthHandler struct {
	accounts *accounts.Store
	ledger   *identity.Ledger
	sessions *security.Sessions
	audit    *audit.Recorder
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(store *accounts.Store, ledger *identity.Ledger, sessions *security.Sessions, recorder *audit.Recorder) *AuthHandler {
	return &AuthHandler{accounts: store, ledger: ledger, sessions: sessions, audit: recorder}
}

// registerRequest defines the request body for registration.
type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Nickname   string `json:"nickname"`
	Role       string `json:"role"`
	AgreeTerms bool   `json:"agree_terms"`
}

// Register creates a password account with its email identity binding.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, errAddr := mail.ParseAddress(email); email == "" || errAddr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}
	if len(body.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	nickname := strings.TrimSpace(body.Nickname)
	if nickname == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nickname is required"})
		return
	}
	if !models.ValidRole(body.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be asker, solver or both"})
		return
	}
	if !body.AgreeTerms {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the service agreement must be accepted"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	ctx := c.Request.Context()
	account, errCreate := h.accounts.Create(ctx, accounts.CreateParams{
		Email:         &email,
		PasswordHash:  hash,
		Nickname:      nickname,
		Role:          body.Role,
		TermsAgreedAt: time.Now().UTC(),
	})
	if errors.Is(errCreate, accounts.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	if errCreate != nil {
		log.WithError(errCreate).Error("register: create account failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	// The email identity row backs password sign-in and the unbind rule.
	if _, errBinding := h.ledger.Create(ctx, account.ID, models.ProviderEmail, email, nil); errBinding != nil {
		if errDelete := h.accounts.Delete(ctx, account.ID); errDelete != nil {
			log.WithError(errDelete).Warnf("register: cleanup of account %d failed", account.ID)
		}
		if errors.Is(errBinding, identity.ErrDuplicateBinding) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		log.WithError(errBinding).Error("register: create email binding failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	pair, errIssue := h.sessions.Issue(account.ID, account.Role)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	h.audit.Record(audit.Event{
		AccountID: account.ID,
		Event:     models.AuditRegister,
		Provider:  models.ProviderEmail,
		ClientIP:  c.ClientIP(),
	})
	setSessionCookies(c, h.sessions, pair)
	c.JSON(http.StatusCreated, gin.H{
		"account": accountResponse(account),
		"session": pair,
	})
}

// loginRequest defines the request body for password login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login authenticates a password account, gated by TOTP when enrolled.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	account, errFind := h.accounts.GetByEmail(c.Request.Context(), email)
	if errors.Is(errFind, accounts.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if errFind != nil {
		log.WithError(errFind).Error("login: account lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if account.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "this account has been disabled"})
		return
	}
	if account.Password == "" || !security.CheckPassword(account.Password, body.Password) {
		h.audit.Record(audit.Event{
			AccountID: account.ID,
			Event:     models.AuditLoginFailed,
			Provider:  models.ProviderEmail,
			Detail:    "wrong password",
			ClientIP:  c.ClientIP(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if account.TOTPSecret != "" {
		code := strings.TrimSpace(body.TOTPCode)
		if code == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "totp code required", "totp_required": true})
			return
		}
		if !totp.Validate(code, account.TOTPSecret) {
			h.audit.Record(audit.Event{
				AccountID: account.ID,
				Event:     models.AuditLoginFailed,
				Provider:  models.ProviderEmail,
				Detail:    "bad totp code",
				ClientIP:  c.ClientIP(),
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
			return
		}
	}

	pair, errIssue := h.sessions.Issue(account.ID, account.Role)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	h.audit.Record(audit.Event{
		AccountID: account.ID,
		Event:     models.AuditLogin,
		Provider:  models.ProviderEmail,
		ClientIP:  c.ClientIP(),
	})
	setSessionCookies(c, h.sessions, pair)
	c.JSON(http.StatusOK, gin.H{
		"account": accountResponse(account),
		"session": pair,
	})
}

// Logout clears the session cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// refreshRequest defines the request body for session renewal.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a fresh pair. The token is read
// from the body, falling back to the refresh cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	_ = c.ShouldBindJSON(&body)
	token := strings.TrimSpace(body.RefreshToken)
	if token == "" {
		if cookie, errCookie := c.Cookie(refreshCookie); errCookie == nil {
			token = strings.TrimSpace(cookie)
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	claims, errParse := h.sessions.ParseRefresh(token)
	if errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	// Reload so role changes and disables take effect at renewal.
	account, errFind := h.accounts.GetByID(c.Request.Context(), claims.AccountID)
	if errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		return
	}
	if account.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "this account has been disabled"})
		return
	}

	pair, errIssue := h.sessions.Issue(account.ID, account.Role)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	setSessionCookies(c, h.sessions, pair)
	c.JSON(http.StatusOK, gin.H{"session": pair})
}
