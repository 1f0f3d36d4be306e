package http

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/models"
)

// totpIssuer is the issuer shown in authenticator apps.
const totpIssuer = "vibepatch"

// MFAHandler enrolls and removes the TOTP second factor.
type MFAHandler struct {
	accounts *accounts.Store
	audit    *audit.Recorder
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(store *accounts.Store, recorder *audit.Recorder) *MFAHandler {
	return &MFAHandler{accounts: store, audit: recorder}
}

// secretEntry stores a pending TOTP secret with expiry.
type secretEntry struct {
	secret  string
	expires time.Time
}

// secretStore keeps TOTP secrets between prepare and confirm.
type secretStore struct {
	mu    sync.Mutex
	items map[string]secretEntry
}

// newSecretStore creates an empty secret store.
func newSecretStore() *secretStore {
	return &secretStore{items: make(map[string]secretEntry)}
}

// Set stores a secret with expiry.
func (s *secretStore) Set(key, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = secretEntry{secret: secret, expires: time.Now().Add(10 * time.Minute)}
}

// Get returns a secret if present and not expired.
func (s *secretStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return "", false
	}
	return entry.secret, true
}

// Delete removes a secret entry.
func (s *secretStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// totpPendingSecrets stores secrets awaiting confirmation.
var totpPendingSecrets = newSecretStore()

// PrepareTOTP provisions a new secret and returns it with a QR code. The
// secret only takes effect once a code is confirmed.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	accountID := currentAccountID(c)
	account, errFind := h.accounts.GetByID(c.Request.Context(), accountID)
	if errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	accountName := account.Nickname
	if account.Email != nil && *account.Email != "" {
		accountName = *account.Email
	}
	if accountName == "" {
		accountName = fmt.Sprintf("account-%d", accountID)
	}

	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
	if errGenerate != nil {
		log.WithError(errGenerate).Error("totp: generate secret failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate totp secret"})
		return
	}

	totpPendingSecrets.Set(fmt.Sprintf("%d", accountID), key.Secret())

	qrImage := ""
	if img, errImage := key.Image(220, 220); errImage == nil {
		var buf bytes.Buffer
		if errEncode := png.Encode(&buf, img); errEncode == nil {
			qrImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      key.Secret(),
		"otpauth_url": key.URL(),
		"qr_image":    qrImage,
	})
}

// totpConfirmRequest defines the request body for confirming TOTP.
type totpConfirmRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP validates a code against the pending secret and enables it.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	var body totpConfirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	accountID := currentAccountID(c)
	secret, ok := totpPendingSecrets.Get(fmt.Sprintf("%d", accountID))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		return
	}
	if !totp.Validate(code, secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	if errUpdate := h.accounts.SetTOTPSecret(c.Request.Context(), accountID, secret); errUpdate != nil {
		log.WithError(errUpdate).Error("totp: store secret failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not enable totp"})
		return
	}

	totpPendingSecrets.Delete(fmt.Sprintf("%d", accountID))
	h.audit.Record(audit.Event{
		AccountID: accountID,
		Event:     models.AuditTOTPEnabled,
		ClientIP:  c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP removes the enrolled second factor.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	accountID := currentAccountID(c)
	if errUpdate := h.accounts.SetTOTPSecret(c.Request.Context(), accountID, ""); errUpdate != nil {
		log.WithError(errUpdate).Error("totp: clear secret failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not disable totp"})
		return
	}
	totpPendingSecrets.Delete(fmt.Sprintf("%d", accountID))
	h.audit.Record(audit.Event{
		AccountID: accountID,
		Event:     models.AuditTOTPDisabled,
		ClientIP:  c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
