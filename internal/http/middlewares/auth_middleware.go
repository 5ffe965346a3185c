package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okoth/userhub/internal/auth"
	"github.com/okoth/userhub/internal/cache"
	"github.com/okoth/userhub/internal/domain/user"
)

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) bool
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt     TokenVerifier
	revoked RevocationChecker // nil when no denylist backend is configured
	users   UserGetter        // nil unless role re-checking is enabled
	userTTL *cache.Cache
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// WithRevocation wires a denylist so logged-out access tokens stop working
// before their expiry.
func (m *AuthMiddleware) WithRevocation(r RevocationChecker) *AuthMiddleware {
	m.revoked = r
	return m
}

// WithRoleRecheck swaps the trusted role claim for a per-request lookup. The
// short-lived cache bounds the extra storage reads.
func (m *AuthMiddleware) WithRoleRecheck(users UserGetter, ttl time.Duration) *AuthMiddleware {
	m.users = users
	m.userTTL = cache.New(ttl)
	return m
}

const (
	ctxUserIDKey    = "auth.userID"
	ctxEmailKey     = "auth.email"
	ctxRoleKey      = "auth.role"
	ctxJTIKey       = "auth.jti"
	ctxExpiresAtKey = "auth.expiresAt"
)

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortUnauthorized(c, "unauthorized", "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				abortUnauthorized(c, "token_expired", "Access token has expired")
				return
			}
			abortUnauthorized(c, "token_invalid", "Invalid access token")
			return
		}

		if m.revoked != nil && m.revoked.IsRevoked(c.Request.Context(), claims.JTI) {
			abortUnauthorized(c, "token_invalid", "Access token has been revoked")
			return
		}

		role := claims.Role

		if m.users != nil {
			fresh, err := m.lookupUser(c.Request.Context(), claims.UserID)
			if err != nil {
				abortUnauthorized(c, "token_invalid", "Account no longer exists")
				return
			}
			if !fresh.Active {
				abortUnauthorized(c, "account_inactive", "Account is deactivated")
				return
			}
			role = fresh.Role
		}

		// Stash useful bits of identity on the context
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxEmailKey, claims.Email)
		c.Set(ctxRoleKey, role)
		c.Set(ctxJTIKey, claims.JTI)
		c.Set(ctxExpiresAtKey, claims.ExpiresAt.Time)

		c.Next()
	}
}

func (m *AuthMiddleware) lookupUser(ctx context.Context, id string) (user.User, error) {
	if v, ok := m.userTTL.Get(id); ok {
		if u, ok := v.(user.User); ok {
			return u, nil
		}
	}

	u, err := m.users.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	m.userTTL.Set(id, u)

	return u, nil
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxEmailKey)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

func RoleFromContext(c *gin.Context) (user.Role, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(user.Role)
	return role, ok
}

func JTIFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxJTIKey)
	if !ok {
		return "", false
	}
	jti, ok := v.(string)
	return jti, ok
}

func ExpiresAtFromContext(c *gin.Context) (time.Time, bool) {
	v, ok := c.Get(ctxExpiresAtKey)
	if !ok {
		return time.Time{}, false
	}
	exp, ok := v.(time.Time)
	return exp, ok
}
