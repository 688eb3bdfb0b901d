// Package plans defines the subscription plans and the quota each one grants.
package plans

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storechat/admission/internal/models"
)

// Plan names.
const (
	Trial      = "trial"
	Starter    = "starter"
	Growth     = "growth"
	Enterprise = "enterprise"
)

// DefaultTrialDays is the trial length used when none is configured.
const DefaultTrialDays = 14

// Plan describes the limits and features granted by a subscription.
type Plan struct {
	Name     string
	Limits   models.QuotaLimits
	Features []string
	// Trial plans carry an expiry; paid plans do not.
	Trial bool
}

var catalog = map[string]Plan{
	Trial: {
		Name: Trial,
		Limits: models.QuotaLimits{
			QueriesPerDay:      100,
			APICallsPerDay:     500,
			StorageMB:          100,
			EmbeddingsCount:    10_000,
			ConcurrentSessions: 2,
			UploadsPerDay:      20,
		},
		Features: []string{"chat_widget", "basic_analytics"},
		Trial:    true,
	},
	Starter: {
		Name: Starter,
		Limits: models.QuotaLimits{
			QueriesPerDay:      1_000,
			APICallsPerDay:     5_000,
			StorageMB:          1_024,
			EmbeddingsCount:    100_000,
			ConcurrentSessions: 5,
			UploadsPerDay:      100,
		},
		Features: []string{"chat_widget", "basic_analytics", "product_sync"},
	},
	Growth: {
		Name: Growth,
		Limits: models.QuotaLimits{
			QueriesPerDay:      10_000,
			APICallsPerDay:     50_000,
			StorageMB:          10_240,
			EmbeddingsCount:    1_000_000,
			ConcurrentSessions: 25,
			UploadsPerDay:      1_000,
		},
		Features: []string{"chat_widget", "advanced_analytics", "product_sync", "custom_branding", "tool_calling"},
	},
	Enterprise: {
		Name: Enterprise,
		Limits: models.QuotaLimits{
			QueriesPerDay:      models.Unlimited,
			APICallsPerDay:     models.Unlimited,
			StorageMB:          102_400,
			EmbeddingsCount:    models.Unlimited,
			ConcurrentSessions: 200,
			UploadsPerDay:      models.Unlimited,
		},
		Features: []string{"chat_widget", "advanced_analytics", "product_sync", "custom_branding", "tool_calling", "sso", "audit_export"},
	},
}

// ErrUnknownPlan is returned by Lookup for names outside the catalog.
var ErrUnknownPlan = errors.New("plans: unknown plan")

// Lookup returns the plan registered under name.
func Lookup(name string) (Plan, error) {
	plan, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Plan{}, fmt.Errorf("%w %q", ErrUnknownPlan, name)
	}
	plan.Features = append([]string(nil), plan.Features...)
	return plan, nil
}

// Names returns the registered plan names ordered by tier.
func Names() []string {
	return []string{Trial, Starter, Growth, Enterprise}
}

// ExpiresAt returns the expiry a tenant on plan receives when it starts at now.
// Paid plans never expire.
func (p Plan) ExpiresAt(now time.Time, trialDays int) *time.Time {
	if !p.Trial {
		return nil
	}
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	expires := now.UTC().AddDate(0, 0, trialDays)
	return &expires
}
