package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
)

// Identifier prefixes. Both are followed by 32 lowercase hex characters.
const (
	// TenantIDPrefix prefixes tenant identifiers.
	TenantIDPrefix = "tn_"
	// TrialTokenPrefix prefixes ephemeral trial tokens.
	TrialTokenPrefix = "tt_"
)

var (
	tenantIDPattern       = regexp.MustCompile(`^tn_[0-9a-f]{32}$`)
	legacyTenantIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	trialTokenPattern     = regexp.MustCompile(`^tt_[0-9a-f]{32}$`)
)

// IsValidTenantID reports whether id is a well-formed tenant identifier.
// Lowercase hyphenated UUIDs are accepted for tenants provisioned before the prefixed form.
func IsValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id) || legacyTenantIDPattern.MatchString(id)
}

// IsValidTrialToken reports whether token is a well-formed trial token.
func IsValidTrialToken(token string) bool {
	return trialTokenPattern.MatchString(token)
}

// GenerateTenantID creates a new random tenant identifier.
func GenerateTenantID() (string, error) {
	return generatePrefixed(TenantIDPrefix)
}

// GenerateTrialToken creates a new random trial token.
func GenerateTrialToken() (string, error) {
	return generatePrefixed(TrialTokenPrefix)
}

func generatePrefixed(prefix string) (string, error) {
	secret := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate %sidentifier: %w", prefix, err)
	}
	return prefix + hex.EncodeToString(secret), nil
}
