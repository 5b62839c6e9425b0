package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scopes granted to service tokens.
const (
	ScopeUsageWrite = "usage:write"
	ScopeUsageRead  = "usage:read"
)

// ServiceTokenPayload captures the data available when minting a JWT.
type ServiceTokenPayload struct {
	ServiceName string
	Scopes      []string
	JTI         string
}

// ServiceTokenClaims represents the typed JWT issued to calling services.
type ServiceTokenClaims struct {
	ServiceName string   `json:"service_name"`
	Scopes      []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token carries the given scope.
func (c *ServiceTokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
