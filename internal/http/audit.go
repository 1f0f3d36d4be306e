package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/models"
)

// maxAuditPageSize caps how many events one request may fetch.
const maxAuditPageSize = 200

// AuditHandler serves the caller's security event trail.
type AuditHandler struct {
	audit *audit.Recorder
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{audit: recorder}
}

// List returns the caller's recent events, newest first. ?limit= bounds
// the page size.
func (h *AuditHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxAuditPageSize {
			parsed = maxAuditPageSize
		}
		limit = parsed
	}

	events, errList := h.audit.ListForAccount(c.Request.Context(), currentAccountID(c), limit)
	if errList != nil {
		log.WithError(errList).Error("audit: list events failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load the event trail"})
		return
	}

	items := make([]gin.H, 0, len(events))
	for i := range events {
		items = append(items, auditEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

// auditEventResponse shapes one audit event for its owner.
func auditEventResponse(event *models.AuditEvent) gin.H {
	body := gin.H{
		"event":      event.Event,
		"created_at": event.CreatedAt,
	}
	if event.Provider != "" {
		body["provider"] = event.Provider
	}
	if event.Detail != "" {
		body["detail"] = event.Detail
	}
	if event.ClientIP != "" {
		body["client_ip"] = event.ClientIP
	}
	return body
}
