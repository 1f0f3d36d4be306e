package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
)

// IdentityHandler lists and removes identity bindings.
type IdentityHandler struct {
	ledger *identity.Ledger
	flow   *flow.SocialFlow
	audit  *audit.Recorder
}

// NewIdentityHandler constructs an IdentityHandler.
func NewIdentityHandler(ledger *identity.Ledger, socialFlow *flow.SocialFlow, recorder *audit.Recorder) *IdentityHandler {
	return &IdentityHandler{ledger: ledger, flow: socialFlow, audit: recorder}
}

// List returns the caller's identity bindings.
func (h *IdentityHandler) List(c *gin.Context) {
	bindings, errList := h.ledger.ListForAccount(c.Request.Context(), currentAccountID(c))
	if errList != nil {
		log.WithError(errList).Error("list bindings failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load identities"})
		return
	}

	items := make([]gin.H, 0, len(bindings))
	for i := range bindings {
		items = append(items, bindingResponse(&bindings[i]))
	}
	c.JSON(http.StatusOK, gin.H{"identities": items})
}

// Unbind removes one binding, subject to the last-sign-in-method rule.
func (h *IdentityHandler) Unbind(c *gin.Context) {
	bindingID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid binding id"})
		return
	}

	errUnbind := h.flow.Unbind(c.Request.Context(), currentAccountID(c), bindingID)
	switch {
	case errors.Is(errUnbind, flow.ErrBindingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "binding not found"})
	case errors.Is(errUnbind, flow.ErrLastLoginMethod):
		c.JSON(http.StatusConflict, gin.H{"error": "keep at least one way to sign in with a password"})
	case errUnbind != nil:
		log.WithError(errUnbind).Error("unbind failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove the binding"})
	default:
		h.audit.Record(audit.Event{
			AccountID: currentAccountID(c),
			Event:     models.AuditUnbind,
			Detail:    fmt.Sprintf("binding %d", bindingID),
			ClientIP:  c.ClientIP(),
		})
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
