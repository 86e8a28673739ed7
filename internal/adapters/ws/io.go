package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/app"
	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

var validate = validator.New()

// messageFrame is the inbound message variant. message_type defaults to
// text; the closed set is enforced here, before the broadcast path.
type messageFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content" validate:"required,max=4096"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image"`
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	c.attachPump()
	defer c.detachPump()
	pingTicker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer pingTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				// Queue drained after Close; detachPump emits the
				// close frame.
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("write error")
				return
			}
		case <-pingTicker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, handle *app.Conn, c *Conn, room domain.RoomID) {
	defer func() {
		cancel()
		ctl.Orch.Disconnect(handle)
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	pongWait := ctl.Cfg.PingPeriod + writeWait
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("conn", string(handle.ID)).Msg("read closed")
				return
			}
			if !ctl.handleFrame(ctx, handle, c, room, data) {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound frame; returning false closes the
// connection (malformed input).
func (ctl *Controller) handleFrame(ctx context.Context, handle *app.Conn, c *Conn, room domain.RoomID, data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("malformed frame")
		return false
	}

	switch env.Type {
	case "message":
		var frame messageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return false
		}
		if frame.MessageType == "" {
			frame.MessageType = string(domain.MessageText)
		}
		if err := validate.Struct(frame); err != nil {
			ctl.sendError(c, "bad_payload")
			return true
		}
		_, err := ctl.Orch.SendMessage(ctx, room, handle.User, domain.MessageType(frame.MessageType), frame.Content)
		if err != nil {
			ctl.sendError(c, err.Error())
		}
	case "typing":
		if err := ctl.Orch.Typing(ctx, room, handle.User); err != nil {
			ctl.sendError(c, err.Error())
		}
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown frame type")
	}
	return true
}

// sendError answers a rejected action directly on the offending
// connection; rejections are never broadcast.
func (ctl *Controller) sendError(c *Conn, reason string) {
	raw, err := json.Marshal(map[string]string{"type": "error", "error": reason})
	if err != nil {
		return
	}
	_ = c.TrySend(core.Frame(raw))
}
