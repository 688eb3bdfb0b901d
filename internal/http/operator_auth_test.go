package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/security"
)

func runOperatorRequest(t *testing.T, secret, authorization, scope string) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v0/admin/tenants", OperatorAuthMiddleware(secret), RequireScope(scope), func(c *gin.Context) {
		c.String(http.StatusOK, OperatorFromContext(c))
	})

	responseRecorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0/admin/tenants", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(responseRecorder, req)
	return responseRecorder
}

func TestOperatorAuthMiddlewareAllowsScopedToken(t *testing.T) {
	token, err := security.GenerateOperatorToken("secret", "ops", []string{security.ScopeTenantsRead}, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	responseRecorder := runOperatorRequest(t, "secret", "Bearer "+token, security.ScopeTenantsRead)
	if responseRecorder.Code != http.StatusOK || responseRecorder.Body.String() != "ops" {
		t.Fatalf("expected 200 for ops, got %d %q", responseRecorder.Code, responseRecorder.Body.String())
	}
}

func TestOperatorAuthMiddlewareRejections(t *testing.T) {
	readOnly, err := security.GenerateOperatorToken("secret", "ops", []string{security.ScopeTenantsRead}, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expired, err := security.GenerateOperatorToken("secret", "ops", []string{security.ScopeTenantsWrite}, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name          string
		secret        string
		authorization string
		status        int
	}{
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "secret", "Bearer abc", http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + expired, http.StatusUnauthorized},
		{"missing scope", "secret", "Bearer " + readOnly, http.StatusForbidden},
		{"unconfigured", "", "Bearer " + readOnly, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		responseRecorder := runOperatorRequest(t, tc.secret, tc.authorization, security.ScopeTenantsWrite)
		if responseRecorder.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, responseRecorder.Code)
		}
	}
}
