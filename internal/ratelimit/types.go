// Package ratelimit implements a token-bucket limiter shared across processes
// through the key-value store, with an in-process bucket as fallback.
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// IdentifierType selects how a rate-limit identifier is composed.
type IdentifierType string

// Identifier types.
const (
	IdentifierTenant     IdentifierType = "tenant"
	IdentifierIP         IdentifierType = "ip"
	IdentifierTenantTool IdentifierType = "tenant_tool"
)

// UnknownIdentifier replaces empty identifiers so they are still limited.
const UnknownIdentifier = "unknown"

const keyPrefix = "ratelimit:"

// Config is the limit applied to one identifier.
type Config struct {
	MaxRequests    int
	Window         time.Duration
	IdentifierType IdentifierType
}

// Result is the outcome of CheckAndConsume.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // Zero when allowed.
}

// ComposeIdentifier builds the identifier for kind. tool is only used by IdentifierTenantTool.
func ComposeIdentifier(kind IdentifierType, subject, tool string) (string, error) {
	subject = strings.TrimSpace(subject)
	tool = strings.TrimSpace(tool)
	switch kind {
	case IdentifierTenant:
		return "tenant:" + subject, nil
	case IdentifierIP:
		return "ip:" + subject, nil
	case IdentifierTenantTool:
		if tool == "" {
			return "", fmt.Errorf("ratelimit: tenant_tool identifier requires a tool name")
		}
		return "tenant:" + subject + ":tool:" + tool, nil
	default:
		return "", fmt.Errorf("ratelimit: unknown identifier type %q", kind)
	}
}

// BucketKey returns the store key of identifier.
func BucketKey(identifier string) string {
	if strings.TrimSpace(identifier) == "" {
		identifier = UnknownIdentifier
	}
	return keyPrefix + identifier
}

// tenantFromIdentifier extracts the tenant from tenant-scoped identifiers.
func tenantFromIdentifier(identifier string) string {
	rest, ok := strings.CutPrefix(identifier, "tenant:")
	if !ok {
		return ""
	}
	tenantID, _, _ := strings.Cut(rest, ":")
	return tenantID
}
