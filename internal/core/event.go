package core

import (
	"encoding/json"
	"time"

	"github.com/avekas/parley/internal/domain"
)

// Kind is the closed set of outbound event types.
type Kind string

const (
	KindMessage          Kind = "message"
	KindTyping           Kind = "typing"
	KindStoppedTyping    Kind = "stopped-typing"
	KindModerationNotice Kind = "moderation-notice"
	KindForcedLeave      Kind = "forced-leave"
)

// Leave reasons carried by forced-leave frames.
const (
	ReasonBanned      = "banned"
	ReasonKicked      = "kicked"
	ReasonRoomDeleted = "room-deleted"
)

// Event is the envelope every outbound frame is wrapped in.
type Event struct {
	Kind    Kind          `json:"type"`
	Room    domain.RoomID `json:"room,omitempty"`
	Actor   domain.UserID `json:"actor,omitempty"`
	Payload any           `json:"payload,omitempty"`
	At      time.Time     `json:"at"`
}

func NewEvent(kind Kind, room domain.RoomID, actor domain.UserID, payload any) Event {
	return Event{
		Kind:    kind,
		Room:    room,
		Actor:   actor,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// Encode marshals the envelope once so a broadcast serializes a single
// time regardless of recipient count.
func (e Event) Encode() (Frame, error) {
	return json.Marshal(e)
}
