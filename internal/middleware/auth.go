package middleware

import (
	"net/http"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticate требует действующий Bearer токен
func Authenticate(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		identity, err := tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalAuth прикрепляет личность, если токен есть и валиден
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := auth.BearerToken(c.GetHeader("Authorization")); raw != "" {
			if identity, err := tokens.Verify(raw); err == nil {
				setIdentity(c, identity)
			}
		}
		c.Next()
	}
}

// RequireAdmin пропускает только администраторов. Ставится после Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity auth.Identity) {
	c.Set(identityKey, identity)
	c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), identity.UserID))
}

// IdentityFrom возвращает аутентифицированного пользователя запроса
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}
