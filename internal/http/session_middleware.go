package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"moviebox/internal/domain"
	"moviebox/internal/service"
)

const (
	authIdentityKey = "auth_identity"
	authClaimsKey   = "auth_claims"
	authSecretKey   = "auth_secret"
)

// Authenticator resuelve un secreto de sesion de proveedor.
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) (domain.Identity, service.ProviderClaims, error)
}

// ProviderSessionMiddleware valida el bearer de la sesion de proveedor y guarda identidad y claims en el contexto.
func ProviderSessionMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity not configured"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		secret := strings.TrimSpace(header[len("Bearer "):])
		ident, claims, err := auth.Authenticate(c.Request.Context(), secret)
		if err != nil {
			if errors.Is(err, service.ErrSessionInvalid) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify session"})
			}
			c.Abort()
			return
		}

		c.Set(authIdentityKey, ident)
		c.Set(authClaimsKey, claims)
		c.Set(authSecretKey, secret)
		c.Next()
	}
}

// GetAuthIdentity obtiene la identidad autenticada desde el contexto.
func GetAuthIdentity(c *gin.Context) (domain.Identity, bool) {
	val, ok := c.Get(authIdentityKey)
	if !ok {
		return domain.Identity{}, false
	}
	ident, ok := val.(domain.Identity)
	return ident, ok
}

func GetAuthClaims(c *gin.Context) (service.ProviderClaims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.ProviderClaims{}, false
	}
	claims, ok := val.(service.ProviderClaims)
	return claims, ok
}
