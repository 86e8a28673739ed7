package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty       = errors.New("message content empty")
	ErrMessageTooLong     = errors.New("message content too long")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// MessageType is a closed set: a message is either plain text or a
// reference to an uploaded image. Validated at the boundary before the
// message reaches the broadcast path.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

type Message struct {
	ID      uuid.UUID   `json:"id"`
	Room    RoomID      `json:"room"`
	Author  UserID      `json:"author"`
	Type    MessageType `json:"message_type"`
	Content string      `json:"content"`
	At      time.Time   `json:"at"`
}

// NewMessage validates the tagged variant and stamps id + server time.
// For text messages Content is the body; for image messages it is the
// served path of the uploaded file.
func NewMessage(room RoomID, author UserID, mt MessageType, content string) (Message, error) {
	switch mt {
	case MessageText, MessageImage:
	default:
		return Message{}, ErrUnknownMessageType
	}
	if len(content) == 0 {
		return Message{}, ErrMessageEmpty
	}
	if len(content) > MaxMessageLen {
		return Message{}, ErrMessageTooLong
	}
	return Message{
		ID:      uuid.New(),
		Room:    room,
		Author:  author,
		Type:    mt,
		Content: content,
		At:      time.Now().UTC(),
	}, nil
}
