package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/storechat/admission/internal/kvstore"
)

func TestComposeIdentifier(t *testing.T) {
	cases := []struct {
		kind    IdentifierType
		subject string
		tool    string
		want    string
	}{
		{IdentifierTenant, "tn_a", "", "tenant:tn_a"},
		{IdentifierIP, "10.0.0.1", "", "ip:10.0.0.1"},
		{IdentifierTenantTool, "tn_a", "search", "tenant:tn_a:tool:search"},
	}
	for _, tc := range cases {
		got, err := ComposeIdentifier(tc.kind, tc.subject, tc.tool)
		if err != nil {
			t.Fatalf("compose %s: %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("compose %s: expected %q, got %q", tc.kind, tc.want, got)
		}
	}
	if _, err := ComposeIdentifier(IdentifierTenantTool, "tn_a", ""); err == nil {
		t.Fatalf("expected error for missing tool")
	}
	if _, err := ComposeIdentifier("user", "x", ""); err == nil {
		t.Fatalf("expected error for unknown identifier type")
	}
}

func TestTenantFromIdentifier(t *testing.T) {
	if got := tenantFromIdentifier("tenant:tn_a:tool:search"); got != "tn_a" {
		t.Fatalf("unexpected tenant %q", got)
	}
	if got := tenantFromIdentifier("ip:10.0.0.1"); got != "" {
		t.Fatalf("expected no tenant, got %q", got)
	}
}

func TestBucketKey(t *testing.T) {
	if got := BucketKey(""); got != "ratelimit:unknown" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := BucketKey("tenant:tn_a"); got != "ratelimit:tenant:tn_a" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestLocalBackendSweepsExpiredBuckets(t *testing.T) {
	backend := NewLocalBackend()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	req := kvstore.BucketRequest{Now: now, MaxTokens: 1, RefillPerMs: 0.001, TTL: time.Second}
	for _, key := range []string{"a", "b"} {
		if _, err := backend.Take(context.Background(), key, req); err != nil {
			t.Fatalf("take: %v", err)
		}
	}
	req.Now = now.Add(2 * time.Minute)
	if _, err := backend.Take(context.Background(), "c", req); err != nil {
		t.Fatalf("take: %v", err)
	}
	if got := backend.Len(); got != 1 {
		t.Fatalf("expected expired buckets swept, %d remain", got)
	}
}
