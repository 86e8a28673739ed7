// Package orch composes the delivery core: every inbound action flows
// gate -> durable write -> broadcast/notify, and every teardown flows
// back through the registry so the membership index never dangles.
package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/app"
	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
	"github.com/avekas/parley/internal/store"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Index
	Presence *app.Presence
	Router   *app.Router
	Notifier *app.Dispatcher
	Gate     *app.Gate
	Policy   app.Policy
	Store    store.Store
}

func New(reg *app.Registry, rooms *app.Index, presence *app.Presence, st store.Store, policy app.Policy) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Presence: presence,
		Router:   app.NewRouter(rooms),
		Notifier: app.NewDispatcher(reg),
		Gate:     app.NewGate(st, st),
		Policy:   policy,
		Store:    st,
	}
	reg.OnEvict(o.cleanupSubscriptions)
	return o
}

// cleanupSubscriptions runs inside the registry teardown path so a dead
// connection leaves no index entries behind, and the room learns the
// user stopped typing if it believed otherwise.
func (o *Orchestrator) cleanupSubscriptions(c *app.Conn) {
	for _, room := range o.Rooms.LeaveAll(c) {
		if o.Presence.ClearTyping(room, c.User) {
			o.Router.Room(room, core.NewEvent(core.KindStoppedTyping, room, c.User, nil))
		}
	}
}

// Connect authenticates a transport into a room: the room must exist,
// the durable membership check must pass, and the identity must not be
// banned. The membership index re-checks the ban under its room lock,
// so a connect racing a ban eviction loses cleanly.
func (o *Orchestrator) Connect(ctx context.Context, room domain.RoomID, user domain.UserID, tr core.Transport) (*app.Conn, error) {
	if _, err := o.Store.Room(ctx, room); err != nil {
		return nil, err
	}
	if err := o.Gate.AuthorizeJoin(ctx, room, user); err != nil {
		return nil, err
	}
	c, err := o.Registry.Register(user, tr)
	if err != nil {
		return nil, err
	}
	if err := o.Rooms.Join(room, c); err != nil {
		o.Registry.Unregister(c)
		return nil, err
	}
	log.Info().Str("module", "orch").Str("room", string(room)).Str("user", string(user)).Str("conn", string(c.ID)).Msg("connected")
	return c, nil
}

// Disconnect tears down one connection. Idempotent; safe to call from
// the transport's read loop after an abrupt close.
func (o *Orchestrator) Disconnect(c *app.Conn) {
	o.Registry.Drop(c, core.CloseNormal, "disconnect")
}

// SendMessage runs the full inbound path: authorize, persist, clear the
// author's typing mark, fan out. The broadcast envelope carries the id
// and timestamp the store assigned.
func (o *Orchestrator) SendMessage(ctx context.Context, room domain.RoomID, author domain.UserID, mt domain.MessageType, content string) (domain.Message, error) {
	if err := o.Gate.AuthorizeSend(ctx, room, author); err != nil {
		return domain.Message{}, err
	}
	msg, err := o.Store.AppendMessage(ctx, room, author, mt, content)
	if err != nil {
		return domain.Message{}, err
	}
	if o.Presence.ClearTyping(room, author) {
		o.applyPolicy(o.Router.Room(room, core.NewEvent(core.KindStoppedTyping, room, author, nil)))
	}
	o.applyPolicy(o.Router.Room(room, core.NewEvent(core.KindMessage, room, author, msg)))
	return msg, nil
}

// Typing refreshes the user's mark and broadcasts at most once per
// debounce window. Permitted while muted; typing is advisory.
func (o *Orchestrator) Typing(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := o.Gate.AuthorizeTyping(ctx, room, user); err != nil {
		return err
	}
	if o.Presence.MarkTyping(room, user) {
		o.applyPolicy(o.Router.Room(room, core.NewEvent(core.KindTyping, room, user, nil)))
	}
	return nil
}

// ActiveTypers is a diagnostics read; TTL filtering happens inside the
// tracker.
func (o *Orchestrator) ActiveTypers(room domain.RoomID) []domain.UserID {
	return o.Presence.ActiveTypers(room)
}

// CreateRoom persists the room and enrolls the owner as its first
// (admin) member.
func (o *Orchestrator) CreateRoom(ctx context.Context, name string, owner domain.UserID) (*domain.Room, error) {
	r, err := domain.NewRoom(name, owner)
	if err != nil {
		return nil, err
	}
	if err := o.Store.CreateRoom(ctx, r); err != nil {
		return nil, err
	}
	if err := o.Store.AddMember(ctx, r.ID, owner, true); err != nil {
		return nil, err
	}
	return r, nil
}

// JoinRoom is the durable join. A banned identity cannot rejoin until
// explicitly unbanned.
func (o *Orchestrator) JoinRoom(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if _, err := o.Store.Room(ctx, room); err != nil {
		return err
	}
	m, ok, err := o.Store.Membership(ctx, room, user)
	if err != nil {
		return err
	}
	if ok {
		if m.IsBanned {
			return core.ErrBanned
		}
		return core.ErrAlreadyMember
	}
	return o.Store.AddMember(ctx, room, user, false)
}

// LeaveRoom is the voluntary durable leave; live subscriptions for the
// room are closed as part of it. The owner must transfer or delete the
// room instead.
func (o *Orchestrator) LeaveRoom(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	r, err := o.Store.Room(ctx, room)
	if err != nil {
		return err
	}
	if r.Owner == user {
		return core.ErrForbidden
	}
	ok, err := o.Store.IsMember(ctx, room, user)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotAMember
	}
	if err := o.Store.RemoveMember(ctx, room, user); err != nil {
		return err
	}
	for _, c := range o.Rooms.Evict(room, user, false) {
		o.Registry.Drop(c, core.CloseNormal, "left room")
	}
	if o.Presence.ClearTyping(room, user) {
		o.applyPolicy(o.Router.Room(room, core.NewEvent(core.KindStoppedTyping, room, user, nil)))
	}
	return nil
}

// Shutdown closes every live connection; part of process teardown.
func (o *Orchestrator) Shutdown() {
	o.Registry.CloseAll()
}

func (o *Orchestrator) applyPolicy(res app.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, c := range res.Dropped {
		switch o.Policy.OnBackPressure(c) {
		case app.KickConnection:
			o.Registry.Drop(c, core.CloseDeliveryFailed, "delivery failed")
		case app.NoAction, app.DropFrame:
		}
	}
}
