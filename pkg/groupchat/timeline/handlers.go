package timeline

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/messages"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
)

// Handler handles timeline requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new timeline handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// parseAnchor accepts a message id or one of the "newest"/"oldest" aliases
func parseAnchor(raw string) (int64, bool) {
	switch raw {
	case "newest":
		return AnchorNewest, true
	case "oldest":
		return AnchorOldest, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil
}

func requiredInt(c *gin.Context, name string) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		outcome.Invalid(c, name+" is required")
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		outcome.Invalid(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// UserMessages returns the caller's message window across all visible groups.
// Query: anchor (id, "newest" or "oldest"), num_before, num_after and the
// optional apply_markdown (default true; false serves raw content).
func (h *Handler) UserMessages(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	rawAnchor, ok := c.GetQuery("anchor")
	if !ok || rawAnchor == "" {
		outcome.Invalid(c, "anchor is required")
		return
	}
	anchor, ok := parseAnchor(rawAnchor)
	if !ok {
		outcome.Invalid(c, "anchor must be an integer, \"newest\" or \"oldest\"")
		return
	}
	numBefore, ok := requiredInt(c, "num_before")
	if !ok {
		return
	}
	numAfter, ok := requiredInt(c, "num_after")
	if !ok {
		return
	}

	applyMarkdown := true
	if raw := c.Query("apply_markdown"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			outcome.Invalid(c, "apply_markdown must be a boolean")
			return
		}
		applyMarkdown = v
	}

	w, err := h.svc.Fetch(c.Request.Context(), userID, Query{Anchor: anchor, NumBefore: numBefore, NumAfter: numAfter})
	if err != nil {
		outcome.Error(c, err)
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{
		"messages":     messages.ToResponses(w.Messages, applyMarkdown),
		"anchor":       w.AnchorID,
		"found_anchor": w.FoundAnchor,
		"found_oldest": w.FoundOldest,
		"found_newest": w.FoundNewest,
	})
}

// RegisterRoutes registers the timeline route under /group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user_messages", h.UserMessages)
}
