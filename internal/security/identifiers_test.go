package security

import (
	"strings"
	"testing"
)

func TestIsValidTenantIDAcceptsCanonicalAndLegacyForms(t *testing.T) {
	valid := []string{
		"tn_00000000000000000000000000000000",
		"tn_0123456789abcdef0123456789abcdef",
		"123e4567-e89b-12d3-a456-426614174000",
	}
	for _, id := range valid {
		if !IsValidTenantID(id) {
			t.Fatalf("expected %q to be valid", id)
		}
	}
}

func TestIsValidTenantIDRejectsMalformedInput(t *testing.T) {
	invalid := []string{
		"",
		"tn_",
		"tn_0000000000000000000000000000000",   // 31 hex
		"tn_000000000000000000000000000000000", // 33 hex
		"tn_0123456789ABCDEF0123456789ABCDEF",
		"TN_0123456789abcdef0123456789abcdef",
		"tt_0123456789abcdef0123456789abcdef",
		"tenant_0123456789abcdef0123456789ab",
		"tn_0123456789abcdef0123456789abcdeg",
		"tn_00000000000000000000000000000000\n",
		" tn_00000000000000000000000000000000",
		"tn_00000000000000000000000000000000' OR '1'='1",
		"tn_0000000000000000'; DROP TABLE t;--",
		"123E4567-E89B-12D3-A456-426614174000",
		"123e4567e89b12d3a456426614174000",
	}
	for _, id := range invalid {
		if IsValidTenantID(id) {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}

func TestIsValidTrialTokenRejectsTenantPrefix(t *testing.T) {
	if IsValidTrialToken("tn_0123456789abcdef0123456789abcdef") {
		t.Fatalf("expected tenant-prefixed value to be rejected as trial token")
	}
	if !IsValidTrialToken("tt_0123456789abcdef0123456789abcdef") {
		t.Fatalf("expected canonical trial token to be accepted")
	}
}

func TestGeneratedIdentifiersMatchTheirFormats(t *testing.T) {
	tenantID, errTenant := GenerateTenantID()
	if errTenant != nil {
		t.Fatalf("generate tenant id: %v", errTenant)
	}
	if !IsValidTenantID(tenantID) || !strings.HasPrefix(tenantID, TenantIDPrefix) {
		t.Fatalf("generated tenant id %q does not match format", tenantID)
	}

	token, errToken := GenerateTrialToken()
	if errToken != nil {
		t.Fatalf("generate trial token: %v", errToken)
	}
	if !IsValidTrialToken(token) {
		t.Fatalf("generated trial token %q does not match format", token)
	}
	if token[3:] == tenantID[3:] {
		t.Fatalf("expected independent random material")
	}
}
