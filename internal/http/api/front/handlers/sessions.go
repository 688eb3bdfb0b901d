package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/tenant"
)

// SessionHandler manages the concurrent session gauge.
type SessionHandler struct {
	validator *tenant.Validator
	quota     *quota.Manager
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(validator *tenant.Validator, quotaManager *quota.Manager) *SessionHandler {
	return &SessionHandler{validator: validator, quota: quotaManager}
}

type sessionRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// Acquire reserves one session slot for an active tenant.
func (h *SessionHandler) Acquire(c *gin.Context) {
	var body sessionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	ctx := c.Request.Context()
	if err := h.validator.ValidateTenantAccess(ctx, body.TenantID, tenant.OperationContext{Operation: "session_acquire"}); err != nil {
		writeError(c, "acquire session", err)
		return
	}
	res, err := h.quota.AcquireSession(ctx, body.TenantID)
	if err != nil {
		writeError(c, "acquire session", err)
		return
	}
	if !res.Allowed {
		writeError(c, "acquire session", res.Denial(models.ResourceConcurrentSessions))
		return
	}
	c.JSON(http.StatusOK, gin.H{"acquired": true, "active": res.Used, "limit": res.Limit, "remaining": res.Remaining})
}

// Release frees one session slot.
func (h *SessionHandler) Release(c *gin.Context) {
	var body sessionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	if err := h.quota.ReleaseSession(c.Request.Context(), body.TenantID); err != nil {
		writeError(c, "release session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}
