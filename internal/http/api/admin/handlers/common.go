package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/plans"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/security"
	"github.com/storechat/admission/internal/tenant"
)

// tenantIDParam reads and validates the :id path parameter.
func tenantIDParam(c *gin.Context) (string, bool) {
	tenantID := c.Param("id")
	if !security.IsValidTenantID(tenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id", "reason": string(admission.ReasonInvalidTenantID)})
		return "", false
	}
	return tenantID, true
}

// writeError maps component errors to admin API responses.
func writeError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
	case errors.Is(err, plans.ErrUnknownPlan),
		errors.Is(err, tenant.ErrInvalidStatus),
		errors.Is(err, quota.ErrTrialTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if _, ok := admission.ReasonOf(err); ok {
			admissionhttp.AbortWithDenial(c, err)
			return
		}
		log.WithError(err).Errorf("admin: %s failed", action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
	}
}
