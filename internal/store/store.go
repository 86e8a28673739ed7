// Package store defines the durable collaborators of the delivery core
// and their BadgerDB implementation. The core consults these interfaces
// but owns none of the data.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/avekas/parley/internal/domain"
)

var (
	ErrUsernameTaken        = errors.New("username taken")
	ErrNotificationNotFound = errors.New("notification not found")
)

type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User, passwordHash string) error
	UserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	// UserByName also returns the stored password hash for login.
	UserByName(ctx context.Context, username string) (*domain.User, string, error)
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *domain.Room) error
	Room(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Rooms(ctx context.Context) ([]domain.Room, error)
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	SetOwner(ctx context.Context, id domain.RoomID, owner domain.UserID) error
}

// MembershipStore is the authoritative source of the per-(room, user)
// moderation flags the gate evaluates.
type MembershipStore interface {
	AddMember(ctx context.Context, room domain.RoomID, user domain.UserID, isAdmin bool) error
	RemoveMember(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Membership(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.Membership, bool, error)
	Members(ctx context.Context, room domain.RoomID) ([]domain.Membership, error)

	IsMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	IsBanned(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	IsAdmin(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	// MuteState returns the mute expiry and whether a mute is recorded.
	// A zero expiry on a recorded mute means permanent.
	MuteState(ctx context.Context, room domain.RoomID, user domain.UserID) (time.Time, bool, error)

	Mute(ctx context.Context, room domain.RoomID, user domain.UserID, until time.Time) error
	Unmute(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Ban(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Unban(ctx context.Context, room domain.RoomID, user domain.UserID) error
	SetAdmin(ctx context.Context, room domain.RoomID, user domain.UserID, isAdmin bool) error
}

// MessageStore persists accepted messages before the core broadcasts
// them; the returned message carries the id and server timestamp that
// are embedded in the broadcast envelope.
type MessageStore interface {
	AppendMessage(ctx context.Context, room domain.RoomID, author domain.UserID, mt domain.MessageType, content string) (domain.Message, error)
	// Messages pages newest-first; the returned cursor resumes the scan.
	Messages(ctx context.Context, room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
}

type NotificationStore interface {
	AddNotification(ctx context.Context, n domain.Notification) error
	Notifications(ctx context.Context, user domain.UserID, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, user domain.UserID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, user domain.UserID) error
}

// Store is the full durable collaborator surface.
type Store interface {
	UserStore
	RoomStore
	MembershipStore
	MessageStore
	NotificationStore
}
