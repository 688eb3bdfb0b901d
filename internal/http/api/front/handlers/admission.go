package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storechat/admission/internal/admission"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/models"
)

// AdmissionHandler answers admission checks for requests served elsewhere.
type AdmissionHandler struct {
	admitter admissionhttp.Admitter
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(admitter admissionhttp.Admitter) *AdmissionHandler {
	return &AdmissionHandler{admitter: admitter}
}

type admissionCheckRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	TrialToken string `json:"trial_token"`
	Operation  string `json:"operation"`
	Resource   string `json:"resource"` // Empty skips the quota check.
	Tool       string `json:"tool"`
	ClientIP   string `json:"client_ip"`
	RequestID  string `json:"request_id"`
}

// Check runs the admission pipeline. Allowed requests get 200 with the remaining budgets;
// denials carry the status and reason of the first failing check.
func (h *AdmissionHandler) Check(c *gin.Context) {
	var body admissionCheckRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		invalidBody(c)
		return
	}
	requestID := strings.TrimSpace(body.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	decision, err := h.admitter.Admit(c.Request.Context(), admission.Request{
		TenantID:   body.TenantID,
		TrialToken: body.TrialToken,
		Operation:  body.Operation,
		Resource:   body.Resource,
		Tool:       body.Tool,
		ClientIP:   strings.TrimSpace(body.ClientIP),
		RequestID:  requestID,
	})
	if err != nil {
		writeError(c, "admission check", err)
		return
	}
	admissionhttp.WriteDecisionHeaders(c, decision)

	resp := gin.H{"allowed": true, "request_id": requestID}
	if decision.RateLimit > 0 {
		resp["rate_limit"] = gin.H{
			"limit":     decision.RateLimit,
			"remaining": decision.RateRemaining,
			"reset_at":  decision.RateResetAt,
		}
	}
	if body.Resource != "" {
		resp["quota"] = gin.H{
			"resource":  body.Resource,
			"limit":     decision.QuotaLimit,
			"remaining": decision.QuotaRemaining,
			"unlimited": decision.QuotaLimit == models.Unlimited,
		}
	}
	c.JSON(http.StatusOK, resp)
}
