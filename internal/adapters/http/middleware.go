package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avekas/parley/internal/core"
)

// AuthRequired resolves the bearer token to an identity and rejects
// disabled accounts. WebSocket clients cannot set headers from the
// browser, so a `token` query parameter is accepted as a fallback.
func (h *Handlers) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		} else {
			raw = c.Query("token")
		}
		if raw == "" {
			abortWith(c, core.ErrUnauthenticated)
			return
		}
		userID, err := h.Tokens.Verify(raw)
		if err != nil {
			abortWith(c, core.ErrUnauthenticated)
			return
		}
		u, err := h.Store.UserByID(c.Request.Context(), userID)
		if err != nil || u.Disabled {
			abortWith(c, core.ErrUnauthenticated)
			return
		}
		c.Set("user_id", string(userID))
		c.Next()
	}
}
