package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID      uint   `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsOwner bool   `json:"is_owner"`
}

// MemberRequest identifies the member to add or remove. A user may be given
// by id or, when adding, by email.
type MemberRequest struct {
	GroupID uint   `json:"group_id" binding:"required"`
	UserID  uint   `json:"user_id"`
	Email   string `json:"email" binding:"omitempty,email"`
}

// ListMembers returns the owner followed by the other members.
// "members" carries just the ordered user ids.
func (h *Handler) ListMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(c.Request.Context(), userID, groupID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{
		"members": lo.Map(members, func(m Member, _ int) uint { return m.User.ID }),
		"users": lo.Map(members, func(m Member, _ int) MemberResponse {
			return MemberResponse{
				ID:      m.User.ID,
				Email:   m.User.Email,
				Name:    m.User.Name,
				IsOwner: m.IsOwner,
			}
		}),
	})
}

func (h *Handler) bindMember(c *gin.Context) (MemberRequest, bool) {
	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return req, false
	}
	if req.UserID == 0 && req.Email != "" {
		id, err := h.svc.UserIDByEmail(c.Request.Context(), req.Email)
		if err != nil {
			outcome.Error(c, err)
			return req, false
		}
		req.UserID = id
	}
	return req, true
}

// AddMember adds a user to a group (owner only)
func (h *Handler) AddMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	req, ok := h.bindMember(c)
	if !ok {
		return
	}

	added, err := h.svc.AddMember(c.Request.Context(), userID, req.GroupID, req.UserID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	msg := "Member added"
	if !added {
		msg = "User is already a member"
	}
	outcome.Success(c, http.StatusOK, gin.H{"msg": msg})
}

// RemoveMember removes a user from a group (owner only)
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	req, ok := h.bindMember(c)
	if !ok {
		return
	}

	removed, err := h.svc.RemoveMember(c.Request.Context(), userID, req.GroupID, req.UserID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	msg := "Member removed"
	if !removed {
		msg = "User was not a member"
	}
	outcome.Success(c, http.StatusOK, gin.H{"msg": msg})
}
