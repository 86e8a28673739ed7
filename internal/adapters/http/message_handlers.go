package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avekas/parley/internal/domain"
)

type postMessageRequest struct {
	Content     string `json:"content" binding:"required,max=4096"`
	MessageType string `json:"message_type" binding:"omitempty,oneof=text image"`
}

// PostMessage is the HTTP twin of the WebSocket message frame; both run
// the same gate -> persist -> broadcast path.
func (h *Handlers) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.MessageType == "" {
		req.MessageType = string(domain.MessageText)
	}
	msg, err := h.Orch.SendMessage(c.Request.Context(), roomParam(c), identity(c), domain.MessageType(req.MessageType), req.Content)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages pages room history newest-first; members only (banned
// members lost read access with their membership flags intact, so the
// gate is consulted, not just the roster).
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	room := roomParam(c)
	if err := h.Orch.Gate.AuthorizeJoin(ctx, room, identity(c)); err != nil {
		abortWith(c, err)
		return
	}
	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		cursor = &raw
	}
	msgs, next, err := h.Store.Messages(ctx, room, cursor)
	if err != nil {
		abortWith(c, err)
		return
	}
	resp := gin.H{"messages": msgs}
	if next != nil {
		resp["next_cursor"] = *next
	}
	c.JSON(http.StatusOK, resp)
}
