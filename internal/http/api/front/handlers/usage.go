package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/quota"
)

// UsageHandler records usage reported by product services.
type UsageHandler struct {
	quota *quota.Manager
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(quotaManager *quota.Manager) *UsageHandler {
	return &UsageHandler{quota: quotaManager}
}

type incrementUsageRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	Resource   string `json:"resource" binding:"required"`
	Amount     int64  `json:"amount"`      // Defaults to 1.
	RequestKey string `json:"request_key"` // Makes retries idempotent when set.
}

// Increment adds to a usage counter.
func (h *UsageHandler) Increment(c *gin.Context) {
	var body incrementUsageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	if body.Amount == 0 {
		body.Amount = 1
	}
	resource := models.ResourceKind(body.Resource)
	ctx := c.Request.Context()

	if body.RequestKey == "" {
		if err := h.quota.IncrementUsage(ctx, body.TenantID, resource, body.Amount); err != nil {
			writeError(c, "increment usage", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"applied": true})
		return
	}
	applied, err := h.quota.IncrementUsageOnce(ctx, body.RequestKey, body.TenantID, resource, body.Amount)
	if err != nil {
		writeError(c, "increment usage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}
