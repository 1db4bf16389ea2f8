package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeySystemRole is the key for system role in gin context
	ContextKeySystemRole = "system_role"
)

var errNoCredentials = errors.New("no credentials")

// Identity is the authenticated caller behind a request
type Identity struct {
	UserID     uint
	Email      string
	SystemRole string
}

// KeyResolver resolves an opaque API key into an identity
type KeyResolver interface {
	ResolveKey(ctx context.Context, key string) (Identity, error)
}

// authenticate reads the Authorization header. JWTs contain dots; anything
// else is handed to keys when one is configured.
func authenticate(c *gin.Context, keys KeyResolver) (Identity, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return Identity{}, errNoCredentials
	}

	// Expect "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return Identity{}, errors.New("Invalid authorization header format")
	}
	token := parts[1]

	if strings.Contains(token, ".") || keys == nil {
		claims, err := ValidateToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return Identity{}, errors.New("Token has expired")
			}
			return Identity{}, errors.New("Invalid token")
		}
		return Identity{UserID: claims.UserID, Email: claims.Email, SystemRole: claims.SystemRole}, nil
	}

	identity, err := keys.ResolveKey(c.Request.Context(), token)
	if err != nil {
		return Identity{}, errors.New("Invalid API key")
	}
	return identity, nil
}

func setIdentity(c *gin.Context, id Identity) {
	c.Set(ContextKeyUserID, id.UserID)
	c.Set(ContextKeyEmail, id.Email)
	c.Set(ContextKeySystemRole, id.SystemRole)
}

func unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"result": "error", "msg": msg})
	c.Abort()
}

// AuthMiddleware requires a valid JWT and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authenticate(c, nil)
		if err != nil {
			if errors.Is(err, errNoCredentials) {
				unauthorized(c, "Authorization header required")
				return
			}
			unauthorized(c, err.Error())
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// IdentityMiddleware resolves the caller from a JWT or, when keys is set, an
// API key. Requests without credentials continue as user 0, which every
// group policy treats as a stranger. Bad credentials are rejected with 401.
func IdentityMiddleware(keys KeyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authenticate(c, keys)
		if err != nil {
			if errors.Is(err, errNoCredentials) {
				c.Next()
				return
			}
			unauthorized(c, err.Error())
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// RequireAuth aborts requests that IdentityMiddleware left anonymous
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			unauthorized(c, "Authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdmin middleware checks if the user has admin system role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextKeySystemRole)
		if !exists {
			unauthorized(c, "Authentication required")
			return
		}

		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"result": "error", "msg": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID returns the user ID from the gin context.
// Anonymous requests yield (0, false).
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetEmail returns the email from the gin context
func GetEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(ContextKeyEmail)
	if !exists {
		return "", false
	}
	return email.(string), true
}

// GetSystemRole returns the system role from the gin context
func GetSystemRole(c *gin.Context) (string, bool) {
	role, exists := c.Get(ContextKeySystemRole)
	if !exists {
		return "", false
	}
	return role.(string), true
}
