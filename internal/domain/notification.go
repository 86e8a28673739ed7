package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType mirrors the moderation actions that produce a
// point-to-point notice for the affected user.
type NotificationType string

const (
	NoticeMute     NotificationType = "mute"
	NoticeUnmute   NotificationType = "unmute"
	NoticeKick     NotificationType = "kick"
	NoticeBan      NotificationType = "ban"
	NoticeUnban    NotificationType = "unban"
	NoticeAdmin    NotificationType = "admin"
	NoticeTransfer NotificationType = "transfer"
)

// Notification content is opaque to the delivery core: the moderation
// collaborator fills Content/Duration and the dispatcher relays them.
// Duration 0 on a mute means permanent.
type Notification struct {
	ID       uuid.UUID        `json:"id"`
	User     UserID           `json:"user"`
	Type     NotificationType `json:"notification_type"`
	Room     RoomID           `json:"room,omitempty"`
	Content  string           `json:"content"`
	Duration int64            `json:"duration,omitempty"`
	Read     bool             `json:"read"`
	At       time.Time        `json:"at"`
}

func NewNotification(user UserID, nt NotificationType, room RoomID, content string, duration int64) Notification {
	return Notification{
		ID:       uuid.New(),
		User:     user,
		Type:     nt,
		Room:     room,
		Content:  content,
		Duration: duration,
		At:       time.Now().UTC(),
	}
}
