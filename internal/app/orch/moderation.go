package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// Moderation operations: durable write first, then notification and,
// for kick/ban, live eviction. Rejections surface before any side
// effect; a rejected action never partially applies.

// Mute blocks the target from sending until the expiry; duration <= 0
// means permanent (zero expiry). The target keeps receiving.
func (o *Orchestrator) Mute(ctx context.Context, room domain.RoomID, actor, target domain.UserID, duration time.Duration) error {
	r, err := o.requireAdminOverMember(ctx, room, actor, target)
	if err != nil {
		return err
	}
	var until time.Time
	if duration > 0 {
		until = time.Now().UTC().Add(duration)
	}
	if err := o.Store.Mute(ctx, room, target, until); err != nil {
		return err
	}
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeMute, room,
		fmt.Sprintf("you have been muted in %s", r.Name),
		int64(duration/time.Second),
	))
	return nil
}

func (o *Orchestrator) Unmute(ctx context.Context, room domain.RoomID, actor, target domain.UserID) error {
	r, err := o.requireAdminOverMember(ctx, room, actor, target)
	if err != nil {
		return err
	}
	if err := o.Store.Unmute(ctx, room, target); err != nil {
		return err
	}
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeUnmute, room,
		fmt.Sprintf("you have been unmuted in %s", r.Name), 0,
	))
	return nil
}

// Kick removes the durable membership and force-closes the target's
// subscriptions to the room. The owner cannot be kicked.
func (o *Orchestrator) Kick(ctx context.Context, room domain.RoomID, actor, target domain.UserID) error {
	r, err := o.requireAdminOverMember(ctx, room, actor, target)
	if err != nil {
		return err
	}
	if r.Owner == target {
		return core.ErrForbidden
	}
	if err := o.Store.RemoveMember(ctx, room, target); err != nil {
		return err
	}
	o.evictLive(room, target, false, core.ReasonKicked, core.CloseKicked)
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeKick, room,
		fmt.Sprintf("you have been kicked from %s", r.Name), 0,
	))
	return nil
}

// Ban flags the durable membership and evicts atomically: once this
// returns, no membersOf call or broadcast sees the target, and joins
// fail with Banned until an explicit unban.
func (o *Orchestrator) Ban(ctx context.Context, room domain.RoomID, actor, target domain.UserID) error {
	r, err := o.requireAdminOverMember(ctx, room, actor, target)
	if err != nil {
		return err
	}
	if r.Owner == target {
		return core.ErrForbidden
	}
	if err := o.Store.Ban(ctx, room, target); err != nil {
		return err
	}
	o.evictLive(room, target, true, core.ReasonBanned, core.CloseBanned)
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeBan, room,
		fmt.Sprintf("you have been banned from %s", r.Name), 0,
	))
	return nil
}

func (o *Orchestrator) Unban(ctx context.Context, room domain.RoomID, actor, target domain.UserID) error {
	if err := o.Gate.RequireAdmin(ctx, room, actor); err != nil {
		return err
	}
	r, err := o.Store.Room(ctx, room)
	if err != nil {
		return err
	}
	if err := o.Store.Unban(ctx, room, target); err != nil {
		return err
	}
	o.Rooms.ClearBan(room, target)
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeUnban, room,
		fmt.Sprintf("you have been unbanned from %s", r.Name), 0,
	))
	return nil
}

// SetAdmin grants or revokes admin; owner only.
func (o *Orchestrator) SetAdmin(ctx context.Context, room domain.RoomID, actor, target domain.UserID, isAdmin bool) error {
	if err := o.Gate.RequireOwner(ctx, room, actor); err != nil {
		return err
	}
	r, err := o.requireMember(ctx, room, target)
	if err != nil {
		return err
	}
	if err := o.Store.SetAdmin(ctx, room, target, isAdmin); err != nil {
		return err
	}
	verb := "revoked"
	if isAdmin {
		verb = "granted"
	}
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeAdmin, room,
		fmt.Sprintf("admin %s in %s", verb, r.Name), 0,
	))
	return nil
}

// TransferOwnership hands the room to another member; owner only.
func (o *Orchestrator) TransferOwnership(ctx context.Context, room domain.RoomID, actor, target domain.UserID) error {
	if err := o.Gate.RequireOwner(ctx, room, actor); err != nil {
		return err
	}
	r, err := o.requireMember(ctx, room, target)
	if err != nil {
		return err
	}
	if err := o.Store.SetOwner(ctx, room, target); err != nil {
		return err
	}
	o.sendNotice(ctx, domain.NewNotification(
		target, domain.NoticeTransfer, room,
		fmt.Sprintf("you are now the owner of %s", r.Name), 0,
	))
	return nil
}

// DeleteRoom is owner-only and force-closes every live subscription
// with reason room-deleted.
func (o *Orchestrator) DeleteRoom(ctx context.Context, room domain.RoomID, actor domain.UserID) error {
	if err := o.Gate.RequireOwner(ctx, room, actor); err != nil {
		return err
	}
	if err := o.Store.DeleteRoom(ctx, room); err != nil {
		return err
	}
	frame := forcedLeaveFrame(room, core.ReasonRoomDeleted)
	for _, c := range o.Rooms.DropRoom(room) {
		if frame != nil {
			_ = c.Transport.TrySend(frame) // client may already be gone
		}
		o.Registry.Drop(c, core.CloseRoomDeleted, core.ReasonRoomDeleted)
	}
	log.Info().Str("module", "orch").Str("room", string(room)).Msg("room deleted")
	return nil
}

// evictLive drops every subscription the target holds to the room,
// emitting a forced-leave frame first. Send failures are swallowed: the
// client is already gone.
func (o *Orchestrator) evictLive(room domain.RoomID, target domain.UserID, ban bool, reason string, code int) {
	frame := forcedLeaveFrame(room, reason)
	for _, c := range o.Rooms.Evict(room, target, ban) {
		if frame != nil {
			_ = c.Transport.TrySend(frame)
		}
		o.Registry.Drop(c, code, reason)
	}
	if o.Presence.ClearTyping(room, target) {
		o.applyPolicy(o.Router.Room(room, core.NewEvent(core.KindStoppedTyping, room, target, nil)))
	}
}

// sendNotice persists the unread copy, then relays it to whatever
// connections the target has right now. No live connection is fine.
func (o *Orchestrator) sendNotice(ctx context.Context, n domain.Notification) {
	if err := o.Store.AddNotification(ctx, n); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("notice", string(n.Type)).Msg("persist notification")
	}
	o.Notifier.Notify(n.User, n)
}

func (o *Orchestrator) requireMember(ctx context.Context, room domain.RoomID, user domain.UserID) (*domain.Room, error) {
	r, err := o.Store.Room(ctx, room)
	if err != nil {
		return nil, err
	}
	ok, err := o.Store.IsMember(ctx, room, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrNotAMember
	}
	return r, nil
}

func (o *Orchestrator) requireAdminOverMember(ctx context.Context, room domain.RoomID, actor, target domain.UserID) (*domain.Room, error) {
	if err := o.Gate.RequireAdmin(ctx, room, actor); err != nil {
		return nil, err
	}
	return o.requireMember(ctx, room, target)
}

func forcedLeaveFrame(room domain.RoomID, reason string) core.Frame {
	ev := core.NewEvent(core.KindForcedLeave, room, "", map[string]string{"reason": reason})
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode forced-leave")
		return nil
	}
	return frame
}
