package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storechat/admission/internal/security"
)

// Context keys set by OperatorAuthMiddleware.
const (
	ContextOperator       = "operator"
	ContextOperatorScopes = "operatorScopes"
)

// OperatorAuthMiddleware verifies the operator bearer token and stores its claims in context.
func OperatorAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseOperatorToken(secret, token)
		if errJWT != nil {
			switch {
			case errors.Is(errJWT, security.ErrEmptySecret):
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "operator auth not configured"})
			case errors.Is(errJWT, security.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextOperatorScopes, claims.Scopes)
		c.Next()
	}
}

// RequireScope rejects operators whose token does not grant scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(ContextOperatorScopes)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not authenticated"})
			return
		}
		scopes, _ := value.([]string)
		claims := security.OperatorClaims{Scopes: scopes}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

// OperatorFromContext returns the authenticated operator name.
func OperatorFromContext(c *gin.Context) string {
	value, ok := c.Get(ContextOperator)
	if !ok {
		return ""
	}
	operator, _ := value.(string)
	return operator
}
