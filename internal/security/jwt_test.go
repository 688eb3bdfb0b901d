package security

import (
	"errors"
	"testing"
	"time"
)

func TestOperatorTokenRoundTripKeepsScopes(t *testing.T) {
	token, errGen := GenerateOperatorToken("secret", "ops@example", []string{ScopeTenantsRead}, time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	claims, errParse := ParseOperatorToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.Operator != "ops@example" {
		t.Fatalf("unexpected operator %q", claims.Operator)
	}
	if !claims.HasScope(ScopeTenantsRead) || claims.HasScope(ScopeTenantsWrite) {
		t.Fatalf("unexpected scopes %v", claims.Scopes)
	}
}

func TestParseOperatorTokenRejectsWrongSecret(t *testing.T) {
	token, errGen := GenerateOperatorToken("secret", "ops", nil, time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseOperatorToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseOperatorTokenReportsExpiry(t *testing.T) {
	token, errGen := GenerateOperatorToken("secret", "ops", nil, -time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseOperatorToken("secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestParseOperatorTokenRequiresSecret(t *testing.T) {
	if _, errParse := ParseOperatorToken("", "anything"); !errors.Is(errParse, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", errParse)
	}
}
