package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 64

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type (
	RoomID   string
	RoomName string
)

type Room struct {
	ID        RoomID    `json:"id"`
	Name      RoomName  `json:"name"`
	Owner     UserID    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRoom(name string, owner UserID) (*Room, error) {
	if len(name) == 0 {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	return &Room{
		ID:        RoomID(uuid.NewString()),
		Name:      RoomName(name),
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Membership is the durable (room, user) record with its moderation flags.
// A zero MuteUntil on a muted record means the mute is permanent.
type Membership struct {
	Room      RoomID    `json:"room"`
	User      UserID    `json:"user"`
	IsAdmin   bool      `json:"is_admin"`
	IsBanned  bool      `json:"is_banned"`
	Muted     bool      `json:"muted"`
	MuteUntil time.Time `json:"mute_until"`
	JoinedAt  time.Time `json:"joined_at"`
}

// MutedAt reports whether the membership is muted at the given instant.
// An expired mute counts as not muted without an explicit unmute.
func (m Membership) MutedAt(now time.Time) bool {
	if !m.Muted {
		return false
	}
	if m.MuteUntil.IsZero() {
		return true
	}
	return now.Before(m.MuteUntil)
}
