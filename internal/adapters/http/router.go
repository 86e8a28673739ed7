package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/adapters/ws"
	"github.com/avekas/parley/internal/app/orch"
	"github.com/avekas/parley/internal/auth"
	"github.com/avekas/parley/internal/config"
	"github.com/avekas/parley/internal/store"
)

type Handlers struct {
	Orch   *orch.Orchestrator
	Store  store.Store
	Tokens *auth.Tokens
	Cfg    *config.Config
}

func NewHandlers(o *orch.Orchestrator, st store.Store, tokens *auth.Tokens, cfg *config.Config) *Handlers {
	return &Handlers{Orch: o, Store: st, Tokens: tokens, Cfg: cfg}
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, wsCtl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", h.AuthRequired())
	authed.GET("/rooms", h.ListRooms)
	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms/:room", h.GetRoom)
	authed.DELETE("/rooms/:room", h.DeleteRoom)
	authed.POST("/rooms/:room/join", h.JoinRoom)
	authed.POST("/rooms/:room/leave", h.LeaveRoom)
	authed.GET("/rooms/:room/members", h.ListMembers)
	authed.GET("/rooms/:room/typers", h.ListTypers)

	authed.POST("/rooms/:room/members/:user/mute", h.MuteMember)
	authed.POST("/rooms/:room/members/:user/unmute", h.UnmuteMember)
	authed.POST("/rooms/:room/members/:user/kick", h.KickMember)
	authed.POST("/rooms/:room/members/:user/ban", h.BanMember)
	authed.POST("/rooms/:room/members/:user/unban", h.UnbanMember)
	authed.POST("/rooms/:room/members/:user/admin", h.SetAdmin)
	authed.POST("/rooms/:room/members/:user/transfer", h.TransferOwnership)

	authed.GET("/rooms/:room/messages", h.ListMessages)
	authed.POST("/rooms/:room/messages", h.PostMessage)
	authed.POST("/rooms/:room/upload", h.Upload)

	authed.GET("/notifications", h.ListNotifications)
	authed.GET("/notifications/unread-count", h.UnreadNotificationCount)
	authed.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	authed.POST("/notifications/:id/read", h.MarkNotificationRead)

	authed.GET("/ws/:room", func(c *gin.Context) {
		wsCtl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("uploads", cfg.UploadDir).Msg("router setup")
	return r
}
