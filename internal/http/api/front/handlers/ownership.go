package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/tenant"
)

// OwnershipHandler checks that a tenant owns a resource.
type OwnershipHandler struct {
	validator *tenant.Validator
}

// NewOwnershipHandler constructs an OwnershipHandler.
func NewOwnershipHandler(validator *tenant.Validator) *OwnershipHandler {
	return &OwnershipHandler{validator: validator}
}

type ownershipCheckRequest struct {
	TenantID     string `json:"tenant_id" binding:"required"`
	ResourceType string `json:"resource_type" binding:"required"`
	ResourceID   string `json:"resource_id" binding:"required"`
}

// Check answers 200 when the tenant owns the resource and a denial otherwise.
func (h *OwnershipHandler) Check(c *gin.Context) {
	var body ownershipCheckRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	if err := h.validator.ValidateResourceOwnership(c.Request.Context(), body.TenantID, body.ResourceType, body.ResourceID); err != nil {
		writeError(c, "ownership check", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": true})
}
