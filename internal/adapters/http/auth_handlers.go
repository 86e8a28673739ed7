package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/auth"
	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,max=36"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	u, err := domain.NewUser(req.Username)
	if err != nil {
		abortWith(c, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		abortWith(c, err)
		return
	}
	if err := h.Store.CreateUser(c.Request.Context(), u, hash); err != nil {
		abortWith(c, err)
		return
	}
	token, err := h.Tokens.Generate(u.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(u.ID)).Msg("registered")
	c.JSON(http.StatusCreated, authResponse{Token: token, User: *u})
}

func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	u, hash, err := h.Store.UserByName(c.Request.Context(), req.Username)
	if err != nil {
		abortWith(c, core.ErrUnauthenticated)
		return
	}
	if u.Disabled {
		abortWith(c, core.ErrUnauthenticated)
		return
	}
	ok, err := auth.ComparePassword(req.Password, hash)
	if err != nil || !ok {
		abortWith(c, core.ErrUnauthenticated)
		return
	}
	token, err := h.Tokens.Generate(u.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, User: *u})
}
