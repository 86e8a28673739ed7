package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avekas/parley/internal/domain"
)

func targetParam(c *gin.Context) domain.UserID {
	return domain.UserID(c.Param("user"))
}

type muteRequest struct {
	// Duration in seconds; 0 means permanent.
	Duration int64 `json:"duration" binding:"min=0"`
}

func (h *Handlers) MuteMember(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.Orch.Mute(c.Request.Context(), roomParam(c), identity(c), targetParam(c), time.Duration(req.Duration)*time.Second)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "muted"})
}

func (h *Handlers) UnmuteMember(c *gin.Context) {
	if err := h.Orch.Unmute(c.Request.Context(), roomParam(c), identity(c), targetParam(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unmuted"})
}

func (h *Handlers) KickMember(c *gin.Context) {
	if err := h.Orch.Kick(c.Request.Context(), roomParam(c), identity(c), targetParam(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "kicked"})
}

func (h *Handlers) BanMember(c *gin.Context) {
	if err := h.Orch.Ban(c.Request.Context(), roomParam(c), identity(c), targetParam(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "banned"})
}

func (h *Handlers) UnbanMember(c *gin.Context) {
	if err := h.Orch.Unban(c.Request.Context(), roomParam(c), identity(c), targetParam(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unbanned"})
}

type setAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

func (h *Handlers) SetAdmin(c *gin.Context) {
	var req setAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.Orch.SetAdmin(c.Request.Context(), roomParam(c), identity(c), targetParam(c), req.IsAdmin)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "admin updated"})
}

func (h *Handlers) TransferOwnership(c *gin.Context) {
	err := h.Orch.TransferOwnership(c.Request.Context(), roomParam(c), identity(c), targetParam(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ownership transferred"})
}
