package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/app/orch"
	"github.com/avekas/parley/internal/config"
	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Orch *orch.Orchestrator
	Cfg  *config.Config
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{Orch: o, Cfg: cfg}
}

// HandleWS upgrades `GET /api/ws/:room` into a room-scoped connection.
// Identity comes from the bearer token middleware; the membership and
// ban checks run before the connection joins the fan-out, and their
// failures map onto distinct close codes so clients can tell why.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	user := domain.UserID(c.GetString("user_id"))
	room := domain.RoomID(c.Param("room"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	conn := newConn(ws, ctl.Cfg.SendBuffer)

	handle, err := ctl.Orch.Connect(ctx, room, user, conn)
	if err != nil {
		log.Info().Err(err).Str("module", "ws").Str("room", string(room)).Str("user", string(user)).Msg("connection refused")
		conn.Close(closeCodeFor(err), err.Error())
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, handle, conn, room)
}

func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return core.CloseRoomNotFound
	case errors.Is(err, core.ErrNotAMember):
		return core.CloseNotAMember
	case errors.Is(err, core.ErrBanned):
		return core.CloseBanned
	default:
		return websocket.CloseInternalServerErr
	}
}
