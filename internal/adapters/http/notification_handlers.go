package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/avekas/parley/internal/domain"
)

// ListNotifications supports ?unread=true and ?type=<notification type>
// filters; both are optional and combine.
func (h *Handlers) ListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	out, err := h.Store.Notifications(c.Request.Context(), identity(c), unreadOnly)
	if err != nil {
		abortWith(c, err)
		return
	}
	if nt := c.Query("type"); nt != "" {
		out = lo.Filter(out, func(n domain.Notification, _ int) bool {
			return n.Type == domain.NotificationType(nt)
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

func (h *Handlers) UnreadNotificationCount(c *gin.Context) {
	out, err := h.Store.Notifications(c.Request.Context(), identity(c), true)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": len(out)})
}

func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.Store.MarkRead(c.Request.Context(), identity(c), id); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	if err := h.Store.MarkAllRead(c.Request.Context(), identity(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}
