package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/tenant"
)

// UsageHandler reports tenant usage against plan limits.
type UsageHandler struct {
	store *tenant.Store
	quota *quota.Manager
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(store *tenant.Store, quotaManager *quota.Manager) *UsageHandler {
	return &UsageHandler{store: store, quota: quotaManager}
}

// Get returns the current period counters, the limits and the active session gauge.
func (h *UsageHandler) Get(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	row, err := h.store.Get(ctx, tenantID)
	if err != nil {
		writeError(c, "get tenant", err)
		return
	}
	period, err := h.quota.GetCurrentUsage(ctx, tenantID)
	if err != nil {
		writeError(c, "get usage", err)
		return
	}

	var sessions any
	if h.quota.SessionsEnabled() {
		active, errSessions := h.quota.ActiveSessions(ctx, tenantID)
		if errSessions != nil {
			writeError(c, "get sessions", errSessions)
			return
		}
		sessions = active
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant_id":    tenantID,
		"plan":         row.Plan,
		"period_key":   period.PeriodKey,
		"period_start": period.PeriodStart,
		"usage": gin.H{
			string(models.ResourceQueries):    period.Queries,
			string(models.ResourceAPICalls):   period.APICalls,
			string(models.ResourceUploads):    period.Uploads,
			string(models.ResourceStorageMB):  period.StorageMB,
			string(models.ResourceEmbeddings): period.Embeddings,
		},
		"limits":          row.Limits(),
		"active_sessions": sessions,
	})
}
