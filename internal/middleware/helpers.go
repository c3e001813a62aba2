// internal/middleware/helpers.go
package middleware

import (
	"meterd-service/internal/domain/access"

	"github.com/gin-gonic/gin"
)

// CurrentPrincipal gets the authenticated principal from context.
func CurrentPrincipal(c *gin.Context) (*access.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}

	p, ok := v.(*access.Principal)
	return p, ok
}

// MustPrincipal gets the principal or panics. Only for routes behind
// Auth().
func MustPrincipal(c *gin.Context) *access.Principal {
	p, ok := CurrentPrincipal(c)
	if !ok {
		panic("principal not found in context")
	}
	return p
}
