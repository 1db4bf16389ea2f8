// Package apikeys manages long-lived API keys, a second way to authenticate
// besides JWTs. Only the SHA-256 of a key is stored.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of the generated API key in bytes (32 bytes = 64 hex chars)
	KeyLength = 32
	// KeyPrefixLength is the number of characters to store as prefix for identification
	KeyPrefixLength = 8
)

// Handler handles API key requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// APIKeyResponse represents an API key in responses
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Description string `json:"description" validate:"max=255"`
}

// generateAPIKey generates a new random API key
func generateAPIKey() (string, error) {
	buf := make([]byte, KeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashAPIKey creates a SHA-256 hash of the API key
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Create creates a new API key for the authenticated user.
// The full key is only ever returned here.
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateAPIKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			outcome.Invalid(c, err.Error())
			return
		}
	}
	if err := apperr.ValidateStruct(req); err != nil {
		outcome.Error(c, err)
		return
	}

	key, err := generateAPIKey()
	if err != nil {
		outcome.Error(c, err)
		return
	}

	apiKey := models.APIKey{
		UserID:      userID,
		KeyHash:     hashAPIKey(key),
		KeyPrefix:   key[:KeyPrefixLength],
		Description: req.Description,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&apiKey).Error; err != nil {
		outcome.Error(c, err)
		return
	}

	zerolog.Ctx(c.Request.Context()).Info().Uint("user_id", userID).Str("key_prefix", apiKey.KeyPrefix).Msg("api key created")
	outcome.Success(c, http.StatusCreated, gin.H{
		"id":          apiKey.ID,
		"key":         key,
		"key_prefix":  apiKey.KeyPrefix,
		"description": apiKey.Description,
		"created_at":  apiKey.CreatedAt,
	})
}

// List returns all API keys for the authenticated user, newest first
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var apiKeys []models.APIKey
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&apiKeys).Error; err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{
		"api_keys": lo.Map(apiKeys, func(key models.APIKey, _ int) APIKeyResponse {
			return APIKeyResponse{
				ID:          key.ID,
				KeyPrefix:   key.KeyPrefix,
				Description: key.Description,
				LastUsedAt:  key.LastUsedAt,
				CreatedAt:   key.CreatedAt,
			}
		}),
	})
}

// Delete revokes one of the caller's API keys
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		outcome.Invalid(c, "Invalid API key ID")
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", keyID, userID).
		Delete(&models.APIKey{})
	if result.Error != nil {
		outcome.Error(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		outcome.Error(c, apperr.NotFound("API key not found"))
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"msg": "API key deleted"})
}

// RegisterRoutes registers API key routes. Callers must already be authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}

// Resolver turns a presented API key into the identity of its owner
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a resolver backed by db
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

var errUnknownKey = errors.New("unknown api key")

// ResolveKey implements auth.KeyResolver and records the key's last use
func (r *Resolver) ResolveKey(ctx context.Context, key string) (auth.Identity, error) {
	db := r.db.WithContext(ctx)

	var apiKey models.APIKey
	if err := db.Preload("User").Where("key_hash = ?", hashAPIKey(key)).First(&apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.Identity{}, errUnknownKey
		}
		return auth.Identity{}, err
	}
	if apiKey.User.ID == 0 {
		return auth.Identity{}, errUnknownKey
	}

	now := time.Now()
	if err := db.Model(&models.APIKey{}).Where("id = ?", apiKey.ID).UpdateColumn("last_used_at", now).Error; err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Uint("api_key_id", apiKey.ID).Msg("failed to record api key use")
	}

	return auth.Identity{
		UserID:     apiKey.UserID,
		Email:      apiKey.User.Email,
		SystemRole: string(apiKey.User.SystemRole),
	}, nil
}
