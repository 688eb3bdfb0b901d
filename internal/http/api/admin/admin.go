// Package admin registers the operator API.
package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/audit"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/http/api/admin/handlers"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/ratelimit"
	"github.com/storechat/admission/internal/security"
	"github.com/storechat/admission/internal/settings"
	"github.com/storechat/admission/internal/tenant"
	"gorm.io/gorm"
)

// Dependencies are the components served by the operator API.
type Dependencies struct {
	DB        *gorm.DB
	KV        kvstore.Store // Optional.
	Tenants   *tenant.Store
	Quota     *quota.Manager
	Limiter   *ratelimit.Limiter
	Audit     *audit.Logger
	Settings  *settings.Store
	JWTSecret string
	TrialDays func() int
}

// RegisterAdminRoutes registers the health check and the /v0/admin routes.
func RegisterAdminRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.KV)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")
	adminGroup.Use(admissionhttp.OperatorAuthMiddleware(deps.JWTSecret))

	read := admissionhttp.RequireScope(security.ScopeTenantsRead)
	write := admissionhttp.RequireScope(security.ScopeTenantsWrite)

	tenantHandler := handlers.NewTenantHandler(deps.Tenants, deps.Quota, deps.TrialDays)
	adminGroup.POST("/tenants", write, tenantHandler.Create)
	adminGroup.GET("/tenants/:id", read, tenantHandler.Get)
	adminGroup.PUT("/tenants/:id/status", write, tenantHandler.UpdateStatus)
	adminGroup.PUT("/tenants/:id/plan", write, tenantHandler.UpdatePlan)
	adminGroup.POST("/tenants/:id/trial-token", write, tenantHandler.IssueTrialToken)

	usageHandler := handlers.NewUsageHandler(deps.Tenants, deps.Quota)
	adminGroup.GET("/tenants/:id/usage", read, usageHandler.Get)

	auditHandler := handlers.NewAuditHandler(deps.Audit)
	adminGroup.GET("/tenants/:id/audit", read, auditHandler.List)

	rateLimitHandler := handlers.NewRateLimitHandler(deps.Limiter)
	adminGroup.POST("/ratelimits/clear", admissionhttp.RequireScope(security.ScopeRateLimitsAdm), rateLimitHandler.Clear)

	settingsAdmin := admissionhttp.RequireScope(security.ScopeSettingsAdm)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings, deps.Audit)
	adminGroup.GET("/settings", settingsAdmin, settingsHandler.List)
	adminGroup.PUT("/settings/:key", settingsAdmin, settingsHandler.Update)
}
