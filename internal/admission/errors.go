package admission

import (
	"errors"
	"fmt"
	"time"
)

// Reason is a machine-readable denial code surfaced to callers and audit events.
type Reason string

// Denial reason codes.
const (
	ReasonInvalidTenantID     Reason = "INVALID_TENANT_ID"
	ReasonInvalidTrialToken   Reason = "INVALID_TRIAL_TOKEN"
	ReasonInvalidResource     Reason = "INVALID_RESOURCE"
	ReasonInvalidAmount       Reason = "INVALID_AMOUNT"
	ReasonTenantNotFound      Reason = "TENANT_NOT_FOUND"
	ReasonResourceNotFound    Reason = "RESOURCE_NOT_FOUND"
	ReasonTrialTokenNotFound  Reason = "TRIAL_TOKEN_NOT_FOUND"
	ReasonTenantInactive      Reason = "TENANT_INACTIVE"
	ReasonTrialExpired        Reason = "TRIAL_EXPIRED"
	ReasonTrialTokenInactive  Reason = "TRIAL_TOKEN_INACTIVE"
	ReasonTrialTokenExpired   Reason = "TRIAL_TOKEN_EXPIRED"
	ReasonCrossTenantResource Reason = "CROSS_TENANT_RESOURCE"
	ReasonTrialTokenMismatch  Reason = "TRIAL_TOKEN_TENANT_MISMATCH"
	ReasonRateLimited         Reason = "RATE_LIMITED"
	ReasonQuotaExceeded       Reason = "QUOTA_EXCEEDED"
	ReasonStoreUnavailable    Reason = "STORE_UNAVAILABLE"
)

// Severity grades access violations.
type Severity string

// Access violation severities.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Denial is implemented by every error that represents a refused admission.
type Denial interface {
	error
	DenialReason() Reason
}

// ValidationError reports a malformed input. Inputs are rejected, never sanitized.
type ValidationError struct {
	Reason Reason
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s (%s)", e.Field, e.Reason)
}

// DenialReason implements Denial.
func (e *ValidationError) DenialReason() Reason { return e.Reason }

// NotFoundError reports a missing tenant, token or resource.
type NotFoundError struct {
	Reason Reason
	Kind   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Kind)
}

// DenialReason implements Denial.
func (e *NotFoundError) DenialReason() Reason { return e.Reason }

// StateError reports a tenant or token in a state that does not permit access.
type StateError struct {
	Reason Reason
	Status string
}

func (e *StateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("access not permitted: %s", e.Reason)
	}
	return fmt.Sprintf("access not permitted: %s (status=%s)", e.Reason, e.Status)
}

// DenialReason implements Denial.
func (e *StateError) DenialReason() Reason { return e.Reason }

// AccessViolation reports an attempted reference across a tenant boundary.
type AccessViolation struct {
	Reason   Reason
	Severity Severity
}

func (e *AccessViolation) Error() string {
	return fmt.Sprintf("access violation: %s (severity=%s)", e.Reason, e.Severity)
}

// DenialReason implements Denial.
func (e *AccessViolation) DenialReason() Reason { return e.Reason }

// RateLimitExceeded reports an exhausted token bucket.
type RateLimitExceeded struct {
	RetryAfter time.Duration
	Limit      int
	ResetAt    time.Time
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded (retry_after=%s)", e.RetryAfter)
}

// DenialReason implements Denial.
func (e *RateLimitExceeded) DenialReason() Reason { return ReasonRateLimited }

// QuotaExceeded reports an exhausted periodic quota. Remaining is always zero.
type QuotaExceeded struct {
	Resource  string
	Limit     int64
	Remaining int64
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded for %s (limit=%d)", e.Resource, e.Limit)
}

// DenialReason implements Denial.
func (e *QuotaExceeded) DenialReason() Reason { return ReasonQuotaExceeded }

// StoreUnavailable reports an infrastructure failure that forced a fail-closed denial.
type StoreUnavailable struct {
	Store string
	Err   error
}

func (e *StoreUnavailable) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s store unavailable", e.Store)
	}
	return fmt.Sprintf("%s store unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailable) Unwrap() error { return e.Err }

// DenialReason implements Denial.
func (e *StoreUnavailable) DenialReason() Reason { return ReasonStoreUnavailable }

// ReasonOf extracts the denial reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var denial Denial
	if errors.As(err, &denial) {
		return denial.DenialReason(), true
	}
	return "", false
}

// IsAccessViolation reports whether err is an AccessViolation and returns its severity.
func IsAccessViolation(err error) (Severity, bool) {
	var violation *AccessViolation
	if errors.As(err, &violation) {
		return violation.Severity, true
	}
	return "", false
}
