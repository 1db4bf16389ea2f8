package groups

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
)

// notOwnedMsg is shown for both a missing group and one the caller does not
// own, on the endpoints that change a group's identity.
const notOwnedMsg = "Group not found or you are not its owner"

// Handler handles group-related requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new groups handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// DeleteGroupRequest names the group to delete, by id or by name
type DeleteGroupRequest struct {
	GroupID uint   `json:"group_id"`
	Name    string `json:"name"`
}

// RenameGroupRequest represents the request to rename a group
type RenameGroupRequest struct {
	GroupID uint   `json:"group_id" binding:"required"`
	NewName string `json:"newname"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     uint      `json:"owner_id"`
	Role        string    `json:"role,omitempty"` // caller's tier in this group
	MemberCount int       `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toGroupResponse(v GroupView) GroupResponse {
	return GroupResponse{
		ID:          v.Group.ID,
		Name:        v.Group.Name,
		Description: v.Group.Description,
		OwnerID:     v.Group.OwnerID,
		Role:        v.Tier.String(),
		MemberCount: v.MemberCount,
		CreatedAt:   v.Group.CreatedAt,
	}
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		outcome.Invalid(c, "Invalid group ID")
		return 0, false
	}
	return uint(id), true
}

// List returns the groups the caller owns or belongs to
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	views, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"groups": lo.Map(views, func(v GroupView, _ int) GroupResponse {
		return toGroupResponse(v)
	})})
}

// Create creates a new group owned by the caller
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	group, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusCreated, gin.H{
		"msg":         "Group created",
		"id":          group.ID,
		"name":        group.Name,
		"description": group.Description,
		"owner_id":    group.OwnerID,
	})
}

// Get returns a specific group to one of its members
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), userID, groupID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"group": toGroupResponse(view)})
}

// Rename changes a group's name (owner only)
func (h *Handler) Rename(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	group, err := h.svc.Rename(c.Request.Context(), userID, req.GroupID, req.NewName)
	if err != nil {
		outcome.Collapsed(c, err, notOwnedMsg)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"msg": "Group renamed", "id": group.ID, "name": group.Name})
}

// Delete deletes a group with its memberships and messages (owner only)
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req DeleteGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	group, err := h.svc.Delete(c.Request.Context(), userID, GroupRef{ID: req.GroupID, Name: req.Name})
	if err != nil {
		outcome.Collapsed(c, err, notOwnedMsg)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"msg": "Group deleted", "id": group.ID})
}

// RegisterRoutes registers group and membership routes under /group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.PATCH("", h.Rename)
	rg.DELETE("", h.Delete)
	rg.GET("/:id", h.Get)

	rg.GET("/member/:group_id", h.ListMembers)
	rg.POST("/member", h.AddMember)
	rg.DELETE("/member", h.RemoveMember)
}
