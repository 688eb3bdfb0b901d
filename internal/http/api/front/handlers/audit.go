package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/audit"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/tenant"
)

// callerEvents are the event types product services may report. Everything else is
// emitted by this service only.
var callerEvents = map[audit.EventType]audit.Severity{
	audit.EventQueryExecuted:    audit.SeverityInfo,
	audit.EventQueryFailed:      audit.SeverityWarning,
	audit.EventDocumentIngested: audit.SeverityInfo,
	audit.EventDocumentDeleted:  audit.SeverityInfo,
	audit.EventIngestionFailed:  audit.SeverityWarning,
	audit.EventToolInvoked:      audit.SeverityInfo,
	audit.EventToolFailed:       audit.SeverityWarning,
}

// AuditHandler accepts audit events from product services.
type AuditHandler struct {
	validator *tenant.Validator
	sink      audit.Sink
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(validator *tenant.Validator, sink audit.Sink) *AuditHandler {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &AuditHandler{validator: validator, sink: sink}
}

type auditEventRequest struct {
	TenantID    string `json:"tenant_id" binding:"required"`
	EventType   string `json:"event_type" binding:"required"`
	Query       string `json:"query"` // Stored as a keyed hash and length only.
	Tool        string `json:"tool"`
	DocumentID  string `json:"document_id"`
	ResultCount *int64 `json:"result_count"`
	DurationMs  *int64 `json:"duration_ms"`
	ErrorCode   string `json:"error_code"`
}

// Record validates the tenant and queues the event. Query text never reaches the log.
func (h *AuditHandler) Record(c *gin.Context) {
	var body auditEventRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	eventType := audit.EventType(strings.TrimSpace(body.EventType))
	severity, ok := callerEvents[eventType]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event type not accepted"})
		return
	}
	op := tenant.OperationContext{Operation: "audit_event"}
	if err := h.validator.ValidateTenantAccess(c.Request.Context(), body.TenantID, op); err != nil {
		writeError(c, "record audit event", err)
		return
	}

	data := map[string]any{}
	if tool := strings.TrimSpace(body.Tool); tool != "" {
		data["tool"] = tool
	}
	if documentID := strings.TrimSpace(body.DocumentID); documentID != "" {
		data["document_id"] = documentID
	}
	if body.ResultCount != nil {
		data["result_count"] = *body.ResultCount
	}
	if body.DurationMs != nil {
		data["duration_ms"] = *body.DurationMs
	}
	if code := strings.TrimSpace(body.ErrorCode); code != "" {
		data["error_code"] = code
	}
	entry := audit.Entry{
		TenantID: body.TenantID,
		Type:     eventType,
		Severity: severity,
		Data:     data,
		Metadata: map[string]any{"caller": admissionhttp.OperatorFromContext(c)},
	}
	if body.Query != "" {
		entry.Sensitive = map[string]string{"query": body.Query}
	}
	h.sink.LogEvent(entry)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
