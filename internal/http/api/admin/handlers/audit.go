package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/audit"
)

// AuditHandler lists persisted audit events.
type AuditHandler struct {
	logger *audit.Logger
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

type auditListQuery struct {
	Limit int `form:"limit"`
}

type auditEventResponse struct {
	ID        uint64          `json:"id"`
	EventType string          `json:"event_type"`
	Severity  string          `json:"severity"`
	EventData json.RawMessage `json:"event_data"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// List returns the newest events of a tenant.
func (h *AuditHandler) List(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	var q auditListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, err := h.logger.Recent(c.Request.Context(), tenantID, q.Limit)
	if err != nil {
		writeError(c, "list audit events", err)
		return
	}
	events := make([]auditEventResponse, 0, len(rows))
	for _, row := range rows {
		events = append(events, auditEventResponse{
			ID:        row.ID,
			EventType: row.EventType,
			Severity:  row.Severity,
			EventData: json.RawMessage(row.EventData),
			Metadata:  json.RawMessage(row.Metadata),
			CreatedAt: row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "events": events})
}
