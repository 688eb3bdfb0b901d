// Package front registers the admission API called by product services.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/audit"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/http/api/front/handlers"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/security"
	"github.com/storechat/admission/internal/tenant"
)

// Dependencies are the components served by the admission API.
type Dependencies struct {
	Admitter  admissionhttp.Admitter
	Quota     *quota.Manager
	Validator *tenant.Validator
	Audit     audit.Sink
	JWTSecret string
}

// RegisterFrontRoutes registers the /v1 admission routes. Callers authenticate with a
// service token carrying the admission scope.
func RegisterFrontRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.Admitter == nil {
		return
	}

	v1 := r.Group("/v1")
	v1.Use(admissionhttp.OperatorAuthMiddleware(deps.JWTSecret), admissionhttp.RequireScope(security.ScopeAdmission))

	admissionHandler := handlers.NewAdmissionHandler(deps.Admitter)
	v1.POST("/admission/check", admissionHandler.Check)

	usageHandler := handlers.NewUsageHandler(deps.Quota)
	v1.POST("/usage/increment", usageHandler.Increment)

	ownershipHandler := handlers.NewOwnershipHandler(deps.Validator)
	v1.POST("/ownership/check", ownershipHandler.Check)

	sessionHandler := handlers.NewSessionHandler(deps.Validator, deps.Quota)
	v1.POST("/sessions/acquire", sessionHandler.Acquire)
	v1.POST("/sessions/release", sessionHandler.Release)

	auditHandler := handlers.NewAuditHandler(deps.Validator, deps.Audit)
	v1.POST("/audit/events", auditHandler.Record)
}
