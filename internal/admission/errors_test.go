package admission

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestReasonOfUnwrapsWrappedDenials(t *testing.T) {
	cases := []struct {
		err  error
		want Reason
	}{
		{&ValidationError{Reason: ReasonInvalidTenantID, Field: "tenant_id"}, ReasonInvalidTenantID},
		{&NotFoundError{Reason: ReasonTenantNotFound, Kind: "tenant"}, ReasonTenantNotFound},
		{&StateError{Reason: ReasonTenantInactive, Status: "suspended"}, ReasonTenantInactive},
		{&AccessViolation{Reason: ReasonCrossTenantResource, Severity: SeverityCritical}, ReasonCrossTenantResource},
		{&RateLimitExceeded{RetryAfter: time.Second}, ReasonRateLimited},
		{&QuotaExceeded{Resource: "queries_per_day", Limit: 10}, ReasonQuotaExceeded},
		{&StoreUnavailable{Store: "database", Err: errors.New("boom")}, ReasonStoreUnavailable},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("handler: %w", tc.err)
		got, ok := ReasonOf(wrapped)
		if !ok {
			t.Fatalf("expected denial for %T", tc.err)
		}
		if got != tc.want {
			t.Fatalf("expected reason %s, got %s", tc.want, got)
		}
	}
}

func TestReasonOfIgnoresPlainErrors(t *testing.T) {
	if _, ok := ReasonOf(errors.New("plain")); ok {
		t.Fatalf("expected plain error to carry no reason")
	}
}

func TestIsAccessViolationReturnsSeverity(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &AccessViolation{Reason: ReasonCrossTenantResource, Severity: SeverityCritical})
	severity, ok := IsAccessViolation(err)
	if !ok || severity != SeverityCritical {
		t.Fatalf("expected CRITICAL violation, got %q ok=%v", severity, ok)
	}
}

func TestStoreUnavailableUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &StoreUnavailable{Store: "database", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}

func TestHTTPStatusMapsEachDenialKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 200},
		{&ValidationError{Reason: ReasonInvalidTenantID}, 400},
		{&NotFoundError{Reason: ReasonTenantNotFound}, 404},
		{&StateError{Reason: ReasonTrialExpired}, 403},
		{&AccessViolation{Reason: ReasonCrossTenantResource, Severity: SeverityCritical}, 403},
		{&RateLimitExceeded{RetryAfter: time.Second}, 429},
		{&QuotaExceeded{Resource: "queries_per_day"}, 429},
		{fmt.Errorf("quota: %w", &StoreUnavailable{Store: "quota"}), 503},
		{errors.New("boom"), 500},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v): expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
