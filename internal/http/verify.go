package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/gateway"
	"github.com/vibepatch/identity/internal/models"
)

// VerifyHandler drives the real-name verification endpoints.
type VerifyHandler struct {
	flow  *flow.VerifyFlow
	audit *audit.Recorder
}

// NewVerifyHandler constructs a VerifyHandler.
func NewVerifyHandler(verifyFlow *flow.VerifyFlow, recorder *audit.Recorder) *VerifyHandler {
	return &VerifyHandler{flow: verifyFlow, audit: recorder}
}

// Status reports whether the account is verified, with the masked name.
func (h *VerifyHandler) Status(c *gin.Context) {
	state, errStatus := h.flow.Status(c.Request.Context(), currentAccountID(c))
	if errStatus != nil {
		log.WithError(errStatus).Error("verify status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load verification status"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// submitRequest defines the request body for starting verification.
type submitRequest struct {
	RealName string `json:"real_name"`
	IDNumber string `json:"id_number"`
}

// Submit validates the submitted identity and opens a provider session.
func (h *VerifyHandler) Submit(c *gin.Context) {
	var body submitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, errSubmit := h.flow.Submit(c.Request.Context(), currentAccountID(c),
		strings.TrimSpace(body.RealName), strings.TrimSpace(body.IDNumber))
	if errors.Is(errSubmit, flow.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errSubmit.Error()})
		return
	}
	if errSubmit != nil {
		if providerErr, ok := gateway.IsProviderError(errSubmit); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": providerErr.Message})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "the verification provider could not be reached, please try again"})
		return
	}
	if result.AutoApproved {
		h.audit.Record(audit.Event{
			AccountID: currentAccountID(c),
			Event:     models.AuditVerifyPassed,
			Provider:  gateway.ProviderAlipay,
			Detail:    "auto approved",
			ClientIP:  c.ClientIP(),
		})
	}
	c.JSON(http.StatusOK, result)
}

// Callback resolves the provider redirect after the face check.
func (h *VerifyHandler) Callback(c *gin.Context) {
	certifyID := strings.TrimSpace(c.Query("certify_id"))
	if certifyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing certify_id"})
		return
	}

	outcome := h.flow.HandleCallback(c.Request.Context(), certifyID, currentAccountID(c))
	switch outcome.Status {
	case flow.StatusCompleted:
		h.audit.Record(audit.Event{
			AccountID: currentAccountID(c),
			Event:     models.AuditVerifyPassed,
			Provider:  gateway.ProviderAlipay,
			ClientIP:  c.ClientIP(),
		})
		c.JSON(http.StatusOK, outcome.Verification)
	case flow.StatusNotPassed:
		h.audit.Record(audit.Event{
			AccountID: currentAccountID(c),
			Event:     models.AuditVerifyFailed,
			Provider:  gateway.ProviderAlipay,
			ClientIP:  c.ClientIP(),
		})
		c.JSON(http.StatusOK, gin.H{"verified": false, "reason": outcome.Reason})
	default:
		c.JSON(outcomeStatusCode(outcome), gin.H{
			"status": string(outcome.Status),
			"error":  outcome.Reason,
		})
	}
}
