package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/tenant"
)

// TenantHandler handles tenant lifecycle endpoints.
type TenantHandler struct {
	store     *tenant.Store
	quota     *quota.Manager
	trialDays func() int
}

// NewTenantHandler constructs a TenantHandler. trialDays supplies the default trial length.
func NewTenantHandler(store *tenant.Store, quotaManager *quota.Manager, trialDays func() int) *TenantHandler {
	if trialDays == nil {
		trialDays = func() int { return 0 }
	}
	return &TenantHandler{store: store, quota: quotaManager, trialDays: trialDays}
}

// createTenantRequest is the payload for provisioning a tenant.
type createTenantRequest struct {
	Name      string `json:"name" binding:"required"` // Display name.
	Plan      string `json:"plan" binding:"required"` // Plan name.
	TrialDays *int   `json:"trial_days"`              // Trial length override.
}

// updateStatusRequest is the payload for a status change.
type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updatePlanRequest is the payload for a plan change.
type updatePlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// issueTrialTokenRequest is the payload for issuing a trial token.
type issueTrialTokenRequest struct {
	TTLHours int `json:"ttl_hours"` // Zero uses the default lifetime.
}

func tenantResponse(row *models.Tenant) gin.H {
	return gin.H{
		"tenant_id":  row.TenantID,
		"name":       row.Name,
		"status":     row.Status,
		"plan":       row.Plan,
		"quota":      row.Limits(),
		"features":   []string(row.Features),
		"expires_at": row.ExpiresAt,
		"created_at": row.CreatedAt,
		"updated_at": row.UpdatedAt,
	}
}

// Create provisions a tenant.
func (h *TenantHandler) Create(c *gin.Context) {
	var body createTenantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	trialDays := h.trialDays()
	if body.TrialDays != nil {
		if *body.TrialDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trial_days must not be negative"})
			return
		}
		trialDays = *body.TrialDays
	}

	row, err := h.store.Provision(c.Request.Context(), body.Name, body.Plan, trialDays)
	if err != nil {
		writeError(c, "provision tenant", err)
		return
	}
	c.JSON(http.StatusCreated, tenantResponse(row))
}

// Get returns one tenant.
func (h *TenantHandler) Get(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	row, err := h.store.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, "get tenant", err)
		return
	}
	c.JSON(http.StatusOK, tenantResponse(row))
}

// UpdateStatus moves a tenant to a new lifecycle status.
func (h *TenantHandler) UpdateStatus(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	var body updateStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	status := models.TenantStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if err := h.store.SetStatus(c.Request.Context(), tenantID, status); err != nil {
		writeError(c, "update status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "status": status})
}

// UpdatePlan moves a tenant to another plan. Usage counters are kept.
func (h *TenantHandler) UpdatePlan(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.quota.UpgradePlan(c.Request.Context(), tenantID, body.Plan); err != nil {
		writeError(c, "update plan", err)
		return
	}
	row, err := h.store.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, "get tenant", err)
		return
	}
	c.JSON(http.StatusOK, tenantResponse(row))
}

// IssueTrialToken replaces the tenant's trial token.
func (h *TenantHandler) IssueTrialToken(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}
	var body issueTrialTokenRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	if body.TTLHours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_hours must not be negative"})
		return
	}

	ttl := tenant.DefaultTrialTokenTTL
	if body.TTLHours > 0 {
		ttl = time.Duration(body.TTLHours) * time.Hour
	}
	token, err := h.store.IssueTrialToken(c.Request.Context(), tenantID, ttl)
	if err != nil {
		writeError(c, "issue trial token", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"tenant_id":  token.TenantID,
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
	})
}
