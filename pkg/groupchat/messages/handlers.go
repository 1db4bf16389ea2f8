package messages

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
)

// MessageResponse represents a message in API responses.
// Content is the rendered markup unless raw content was asked for.
type MessageResponse struct {
	ID              uint      `json:"id"`
	SenderID        uint      `json:"sender_id"`
	RecipientType   string    `json:"recipient_type"`
	RecipientID     uint      `json:"recipient_id"`
	Subject         string    `json:"subject"`
	Content         string    `json:"content"`
	RenderedContent string    `json:"rendered_content"`
	Timestamp       int64     `json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToResponse converts a stored message. rendered picks which form goes into Content.
func ToResponse(m models.Message, rendered bool) MessageResponse {
	content := m.RawContent
	if rendered {
		content = m.RenderedContent
	}
	return MessageResponse{
		ID:              m.ID,
		SenderID:        m.SenderID,
		RecipientType:   string(m.RecipientType),
		RecipientID:     m.RecipientID,
		Subject:         m.Subject,
		Content:         content,
		RenderedContent: m.RenderedContent,
		Timestamp:       m.CreatedAt.Unix(),
		CreatedAt:       m.CreatedAt,
	}
}

// ToResponses converts a slice of stored messages
func ToResponses(msgs []models.Message, rendered bool) []MessageResponse {
	return lo.Map(msgs, func(m models.Message, _ int) MessageResponse {
		return ToResponse(m, rendered)
	})
}

// DeleteAllRequest names the group whose messages are deleted
type DeleteAllRequest struct {
	GroupID uint `json:"group_id" binding:"required"`
}

// Handler handles group message requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new messages handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Send posts a message to a group the caller belongs to
func (h *Handler) Send(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req SendCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), userID, req)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{
		"msg":     "Message sent",
		"id":      msg.ID,
		"message": ToResponse(msg, true),
	})
}

// ListForGroup returns the group's messages, oldest first
func (h *Handler) ListForGroup(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("group_id"), 10, 32)
	if err != nil || groupID == 0 {
		outcome.Invalid(c, "Invalid group ID")
		return
	}

	msgs, err := h.svc.ListForGroup(c.Request.Context(), uint(groupID))
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"messages": ToResponses(msgs, false)})
}

// DeleteAll removes every message in a group (owner only)
func (h *Handler) DeleteAll(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req DeleteAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	deleted, err := h.svc.DeleteAllForGroup(c.Request.Context(), userID, req.GroupID)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"msg": "All group messages are deleted!", "deleted": deleted})
}

// RegisterRoutes registers message routes under /group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages/send", h.Send)
	rg.GET("/messages/:group_id", h.ListForGroup)
	rg.DELETE("/messages/delete", h.DeleteAll)
}
