package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/ratelimit"
)

// RateLimitHandler exposes administrative rate-limit operations.
type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// clearRateLimitRequest names the bucket to reset, either directly or by its parts.
type clearRateLimitRequest struct {
	Identifier string `json:"identifier"` // Composed identifier, e.g. tenant:tn_x.
	Type       string `json:"type"`       // tenant, ip or tenant_tool.
	Subject    string `json:"subject"`    // Tenant id or client IP.
	Tool       string `json:"tool"`       // Tool name for tenant_tool.
}

// Clear resets one bucket so its next request starts full.
func (h *RateLimitHandler) Clear(c *gin.Context) {
	var body clearRateLimitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	identifier := strings.TrimSpace(body.Identifier)
	if identifier == "" {
		if strings.TrimSpace(body.Subject) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "identifier or subject is required"})
			return
		}
		composed, err := ratelimit.ComposeIdentifier(ratelimit.IdentifierType(strings.TrimSpace(body.Type)), body.Subject, body.Tool)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		identifier = composed
	}

	if err := h.limiter.Clear(c.Request.Context(), identifier); err != nil {
		log.WithError(err).Error("admin: clear rate limit failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "clear rate limit failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": identifier})
}
