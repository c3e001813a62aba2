// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"meterd-service/internal/domain/access"
	"meterd-service/internal/pkg/jwt"
	"meterd-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

type AuthMiddleware struct {
	verifier *jwt.Verifier
}

func NewAuthMiddleware(verifier *jwt.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Auth validates the bearer token and materializes the calling
// principal into the request context. Token issuance is the platform
// auth service's job; this service only verifies.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set(principalKey, &access.Principal{
			ID:                  claims.PrincipalID,
			Role:                access.Role(claims.Role),
			ExplicitPermissions: claims.Permissions,
			IsActive:            true,
		})

		c.Next()
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fallback to query param for websocket upgrades
	return c.Query("token")
}
