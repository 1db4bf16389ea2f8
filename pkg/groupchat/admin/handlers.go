// Package admin exposes account management and system statistics to users
// with the admin system role.
package admin

import (
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

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID              uint   `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	SystemRole      string `json:"system_role"`
	CreatedAt       string `json:"created_at"`
	OwnedGroupCount int64  `json:"owned_group_count"`
	MembershipCount int64  `json:"membership_count"`
	MessageCount    int64  `json:"message_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name" validate:"omitempty,max=100"`
	SystemRole *string `json:"system_role" validate:"omitempty,oneof=admin user"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	AdminUsers       int64 `json:"admin_users"`
	TotalGroups      int64 `json:"total_groups"`
	TotalMemberships int64 `json:"total_memberships"`
	TotalMessages    int64 `json:"total_messages"`
	ActiveAPIKeys    int64 `json:"active_api_keys"`
	LatestMessageID  uint  `json:"latest_message_id"`
}

func (h *Handler) userResponse(db *gorm.DB, user models.User) UserResponse {
	resp := UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
	}
	db.Model(&models.Group{}).Where("owner_id = ?", user.ID).Count(&resp.OwnedGroupCount)
	db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&resp.MembershipCount)
	db.Model(&models.Message{}).Where("sender_id = ?", user.ID).Count(&resp.MessageCount)
	return resp
}

func (h *Handler) loadUser(c *gin.Context) (models.User, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		outcome.Invalid(c, "Invalid user ID")
		return models.User{}, false
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome.Error(c, apperr.NotFound("User %d not found", id))
		} else {
			outcome.Error(c, err)
		}
		return models.User{}, false
	}
	return user, true
}

// ListUsers returns all users, newest first
func (h *Handler) ListUsers(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var users []models.User

	query := db.Order("id DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{
		"users": lo.Map(users, func(u models.User, _ int) UserResponse {
			return h.userResponse(db, u)
		}),
	})
}

// GetUser returns a single user with activity counts
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	outcome.Success(c, http.StatusOK, gin.H{"user": h.userResponse(h.db.WithContext(c.Request.Context()), user)})
}

// UpdateUser updates a user's name or system role
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}
	if err := apperr.ValidateStruct(req); err != nil {
		outcome.Error(c, err)
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		outcome.Invalid(c, "Cannot demote yourself")
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SystemRole != nil {
		updates["system_role"] = *req.SystemRole
	}

	db := h.db.WithContext(c.Request.Context())
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			outcome.Error(c, err)
			return
		}
	}
	if err := db.First(&user, user.ID).Error; err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"user": h.userResponse(db, user)})
}

// DeleteUser removes a user together with the groups they own, those
// groups' memberships and messages, their own memberships and API keys.
// Messages they sent to other users' groups are kept.
func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID {
		outcome.Invalid(c, "Cannot delete yourself")
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var owned []uint
		if err := tx.Model(&models.Group{}).Where("owner_id = ?", user.ID).Pluck("id", &owned).Error; err != nil {
			return err
		}
		if len(owned) > 0 {
			if err := tx.Where("recipient_type = ? AND recipient_id IN ?", models.RecipientTypeGroup, owned).
				Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("group_id IN ?", owned).Delete(&models.GroupMembership{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Group{}, owned).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		outcome.Error(c, err)
		return
	}

	zerolog.Ctx(c.Request.Context()).Info().Uint("user_id", user.ID).Uint("deleted_by", currentUserID).Msg("user deleted")
	outcome.Success(c, http.StatusOK, gin.H{"msg": "User deleted successfully"})
}

// GetStats returns system-wide statistics
func (h *Handler) GetStats(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var stats StatsResponse

	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	db.Model(&models.Group{}).Count(&stats.TotalGroups)
	db.Model(&models.GroupMembership{}).Count(&stats.TotalMemberships)
	db.Model(&models.Message{}).Count(&stats.TotalMessages)
	db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)
	db.Model(&models.Message{}).Select("COALESCE(MAX(id), 0)").Scan(&stats.LatestMessageID)

	outcome.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// RegisterRoutes registers admin routes on the given router group.
// Callers must already pass auth.RequireAdmin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
