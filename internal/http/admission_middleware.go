package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/models"
)

// Request headers read by the admission middleware.
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderTrialToken = "X-Trial-Token"
	HeaderRequestID  = "X-Request-ID"
)

// Context keys set for downstream handlers.
const (
	ContextTenantID  = "tenantID"
	ContextRequestID = "requestID"
)

// Admitter runs the admission pipeline.
type Admitter interface {
	Admit(ctx context.Context, req admission.Request) (admission.Decision, error)
}

// UsageRecorder records usage of admitted requests at most once per request key.
type UsageRecorder interface {
	IncrementUsageOnce(ctx context.Context, requestKey, tenantID string, resource models.ResourceKind, amount int64) (bool, error)
}

// AdmissionMiddleware admits product requests for resource and, once the handler succeeds,
// records one unit of usage. An empty resource skips the quota stage.
// The client X-Request-ID is echoed for correlation only; the usage key is minted here.
func AdmissionMiddleware(admitter Admitter, recorder UsageRecorder, resource models.ResourceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if admitter == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admission unavailable"})
			return
		}

		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		tenantID := c.GetHeader(HeaderTenantID)
		decision, err := admitter.Admit(c.Request.Context(), admission.Request{
			TenantID:   tenantID,
			TrialToken: c.GetHeader(HeaderTrialToken),
			Operation:  c.Request.Method + " " + c.FullPath(),
			Resource:   string(resource),
			Tool:       c.Param("tool"),
			ClientIP:   c.ClientIP(),
			RequestID:  requestID,
		})
		if err != nil {
			AbortWithDenial(c, err)
			return
		}
		WriteDecisionHeaders(c, decision)

		c.Set(ContextTenantID, tenantID)
		c.Set(ContextRequestID, requestID)
		c.Next()

		if resource == "" || recorder == nil || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		ctx := context.WithoutCancel(c.Request.Context())
		usageKey := uuid.NewString() + ":" + string(resource)
		if _, errRecord := recorder.IncrementUsageOnce(ctx, usageKey, tenantID, resource, 1); errRecord != nil {
			log.WithError(errRecord).Warnf("admission middleware: record %s usage for %s failed", resource, tenantID)
		}
	}
}

// WriteDecisionHeaders exposes the remaining budgets of an admitted request.
func WriteDecisionHeaders(c *gin.Context, decision admission.Decision) {
	if decision.RateLimit > 0 {
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.RateLimit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.RateRemaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.RateResetAt.Unix(), 10))
	}
	if decision.QuotaLimit >= 0 {
		c.Header("X-Quota-Limit", strconv.FormatInt(decision.QuotaLimit, 10))
		c.Header("X-Quota-Remaining", strconv.FormatInt(decision.QuotaRemaining, 10))
	}
}

// AbortWithDenial writes err as a JSON error with the status of its denial kind.
// Internal details are not exposed; the reason code is.
func AbortWithDenial(c *gin.Context, err error) {
	status := admission.HTTPStatus(err)
	body := gin.H{"error": http.StatusText(status)}
	if reason, ok := admission.ReasonOf(err); ok {
		body["reason"] = string(reason)
	}

	var rateLimited *admission.RateLimitExceeded
	if errors.As(err, &rateLimited) {
		seconds := int64(math.Ceil(rateLimited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		body["retry_after_ms"] = rateLimited.RetryAfter.Milliseconds()
	}
	var quotaExceeded *admission.QuotaExceeded
	if errors.As(err, &quotaExceeded) {
		body["resource"] = quotaExceeded.Resource
		body["remaining"] = 0
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("admission: unexpected error")
	}
	c.AbortWithStatusJSON(status, body)
}
