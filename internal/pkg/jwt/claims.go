// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the principal's identity and grants. Tokens are
// issued by the platform's auth service; this service only verifies.
type Claims struct {
	PrincipalID int64    `json:"principal_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	Purpose     string   `json:"purpose"` // access, service
	jwt.RegisteredClaims
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}

	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}

	return false
}
