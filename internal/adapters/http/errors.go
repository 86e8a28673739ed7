// Package http is the gin surface: thin request plumbing over the
// orchestrator and the durable store.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
	"github.com/avekas/parley/internal/store"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden),
		errors.Is(err, core.ErrBanned),
		errors.Is(err, core.ErrMuted):
		return http.StatusForbidden
	case errors.Is(err, core.ErrRoomNotFound),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, store.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyMember),
		errors.Is(err, store.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotAMember),
		errors.Is(err, domain.ErrMessageEmpty),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrUnknownMessageType),
		errors.Is(err, domain.ErrRoomNameEmpty),
		errors.Is(err, domain.ErrRoomNameTooLong),
		errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
