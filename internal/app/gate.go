package app

import (
	"context"
	"time"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
	"github.com/avekas/parley/internal/store"
)

// MemberState is the gate's view of one (room, user) membership.
type MemberState int

const (
	StateAbsent MemberState = iota
	StateActive
	StateMuted
	StateBanned
)

func (s MemberState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateMuted:
		return "muted"
	case StateBanned:
		return "banned"
	default:
		return "absent"
	}
}

// Gate evaluates every inbound action against the durable moderation
// flags before any side effect. It treats the store as authoritative
// and owns no state of its own.
type Gate struct {
	members store.MembershipStore
	rooms   store.RoomStore
	now     func() time.Time
}

func NewGate(members store.MembershipStore, rooms store.RoomStore) *Gate {
	return &Gate{members: members, rooms: rooms, now: time.Now}
}

// State resolves the membership state machine at evaluation time. An
// expired mute reads as active without requiring an explicit unmute.
func (g *Gate) State(ctx context.Context, room domain.RoomID, user domain.UserID) (MemberState, error) {
	m, ok, err := g.members.Membership(ctx, room, user)
	if err != nil {
		return StateAbsent, err
	}
	if !ok {
		return StateAbsent, nil
	}
	if m.IsBanned {
		return StateBanned, nil
	}
	if m.MutedAt(g.now()) {
		return StateMuted, nil
	}
	return StateActive, nil
}

// AuthorizeJoin admits active and muted members; muted users may still
// receive, they just cannot send.
func (g *Gate) AuthorizeJoin(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	state, err := g.State(ctx, room, user)
	if err != nil {
		return err
	}
	switch state {
	case StateBanned:
		return core.ErrBanned
	case StateAbsent:
		return core.ErrNotAMember
	}
	return nil
}

// AuthorizeSend guards message sends and uploads.
func (g *Gate) AuthorizeSend(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	state, err := g.State(ctx, room, user)
	if err != nil {
		return err
	}
	switch state {
	case StateBanned:
		return core.ErrBanned
	case StateAbsent:
		return core.ErrNotAMember
	case StateMuted:
		return core.ErrMuted
	}
	return nil
}

// AuthorizeTyping: typing is advisory and permitted while muted.
func (g *Gate) AuthorizeTyping(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return g.AuthorizeJoin(ctx, room, user)
}

// RequireAdmin passes for room admins and the room owner.
func (g *Gate) RequireAdmin(ctx context.Context, room domain.RoomID, actor domain.UserID) error {
	r, err := g.rooms.Room(ctx, room)
	if err != nil {
		return err
	}
	if r.Owner == actor {
		return nil
	}
	isAdmin, err := g.members.IsAdmin(ctx, room, actor)
	if err != nil {
		return err
	}
	if !isAdmin {
		return core.ErrForbidden
	}
	return nil
}

// RequireOwner guards owner-only actions (set admin, transfer).
func (g *Gate) RequireOwner(ctx context.Context, room domain.RoomID, actor domain.UserID) error {
	r, err := g.rooms.Room(ctx, room)
	if err != nil {
		return err
	}
	if r.Owner != actor {
		return core.ErrForbidden
	}
	return nil
}
