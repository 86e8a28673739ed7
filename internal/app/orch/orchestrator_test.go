package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avekas/parley/internal/app"
	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
	"github.com/avekas/parley/internal/store"
)

type fakeTransport struct {
	mu        sync.Mutex
	frames    []core.Frame
	closed    bool
	failSend  bool
	closeCode int
}

func (t *fakeTransport) TrySend(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.failSend {
		return errors.New("transport down")
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *fakeTransport) Close(code int, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.closeCode = code
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) events(tb testing.TB) []core.Event {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.Event, 0, len(t.frames))
	for _, f := range t.frames {
		var ev core.Event
		require.NoError(tb, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (t *fakeTransport) countKind(tb testing.TB, kind core.Kind) int {
	n := 0
	for _, ev := range t.events(tb) {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	o     *Orchestrator
	st    *store.Badger
	room  domain.RoomID
	owner domain.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir(), 50)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	o := New(app.NewRegistry(), app.NewIndex(), app.NewPresence(6*time.Second, 3*time.Second), st, app.SimplePolicy{})

	r, err := o.CreateRoom(context.Background(), "general", "owner")
	require.NoError(t, err)
	return &fixture{o: o, st: st, room: r.ID, owner: "owner"}
}

// enroll joins the user durably and attaches a live connection.
func (f *fixture) enroll(t *testing.T, user domain.UserID) (*app.Conn, *fakeTransport) {
	t.Helper()
	ctx := context.Background()
	if ok, err := f.st.IsMember(ctx, f.room, user); err == nil && !ok {
		require.NoError(t, f.o.JoinRoom(ctx, f.room, user))
	}
	tr := &fakeTransport{}
	c, err := f.o.Connect(ctx, f.room, user, tr)
	require.NoError(t, err)
	return c, tr
}

func TestConnect_JoinVisibleToBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, ownerTr := f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	req.ElementsMatch([]domain.UserID{"owner", "alice"}, f.o.Rooms.MembersOf(f.room))

	msg, err := f.o.SendMessage(ctx, f.room, f.owner, domain.MessageText, "welcome")
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal(1, aliceTr.countKind(t, core.KindMessage))
	req.Equal(1, ownerTr.countKind(t, core.KindMessage), "sender's devices receive too")
}

func TestConnect_Rejections(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.Connect(ctx, "no-such-room", "alice", &fakeTransport{})
	req.ErrorIs(err, core.ErrRoomNotFound)

	_, err = f.o.Connect(ctx, f.room, "stranger", &fakeTransport{})
	req.ErrorIs(err, core.ErrNotAMember)
	req.False(f.o.Registry.Has("stranger"), "rejected connect leaves no registration")
}

func TestMute_BlocksSendKeepsReceive(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, ownerTr := f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	req.NoError(f.o.Mute(ctx, f.room, f.owner, "alice", 5*time.Minute))

	_, err := f.o.SendMessage(ctx, f.room, "alice", domain.MessageText, "can you hear me")
	req.ErrorIs(err, core.ErrMuted)
	req.Equal(0, ownerTr.countKind(t, core.KindMessage), "rejected message reaches nobody")

	msgs, _, err := f.st.Messages(ctx, f.room, nil)
	req.NoError(err)
	req.Empty(msgs, "rejected message is not persisted")

	// Muted means receive-only, not deaf.
	_, err = f.o.SendMessage(ctx, f.room, f.owner, domain.MessageText, "still with us?")
	req.NoError(err)
	req.Equal(1, aliceTr.countKind(t, core.KindMessage))

	// The target got a point-to-point notice, live and durable.
	req.Equal(1, aliceTr.countKind(t, core.KindModerationNotice))
	notes, err := f.st.Notifications(ctx, "alice", true)
	req.NoError(err)
	req.Len(notes, 1)
	req.Equal(domain.NoticeMute, notes[0].Type)
	req.EqualValues(300, notes[0].Duration)

	req.NoError(f.o.Unmute(ctx, f.room, f.owner, "alice"))
	_, err = f.o.SendMessage(ctx, f.room, "alice", domain.MessageText, "back")
	req.NoError(err)
}

func TestBan_EvictsAndBlocksRejoin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	req.NoError(f.o.Ban(ctx, f.room, f.owner, "alice"))

	req.True(aliceTr.Closed())
	req.Equal(core.CloseBanned, aliceTr.closeCode)
	req.Equal(1, aliceTr.countKind(t, core.KindForcedLeave))
	req.ElementsMatch([]domain.UserID{"owner"}, f.o.Rooms.MembersOf(f.room))

	_, err := f.o.Connect(ctx, f.room, "alice", &fakeTransport{})
	req.ErrorIs(err, core.ErrBanned)
	req.ErrorIs(f.o.JoinRoom(ctx, f.room, "alice"), core.ErrBanned)

	req.NoError(f.o.Unban(ctx, f.room, f.owner, "alice"))
	_, err = f.o.Connect(ctx, f.room, "alice", &fakeTransport{})
	req.NoError(err, "unban restores access")
}

func TestKick_EvictsButAllowsRejoin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	req.NoError(f.o.Kick(ctx, f.room, f.owner, "alice"))
	req.True(aliceTr.Closed())
	req.Equal(core.CloseKicked, aliceTr.closeCode)

	req.NoError(f.o.JoinRoom(ctx, f.room, "alice"), "kick does not bar rejoining")
}

func TestModeration_Guards(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.NoError(f.o.JoinRoom(ctx, f.room, "alice"))
	req.NoError(f.o.JoinRoom(ctx, f.room, "bob"))

	req.ErrorIs(f.o.Mute(ctx, f.room, "alice", "bob", 0), core.ErrForbidden, "non-admin cannot moderate")
	req.ErrorIs(f.o.Kick(ctx, f.room, "alice", f.owner), core.ErrForbidden)
	req.ErrorIs(f.o.Mute(ctx, f.room, f.owner, "stranger", 0), core.ErrNotAMember)

	req.ErrorIs(f.o.Kick(ctx, f.room, f.owner, f.owner), core.ErrForbidden, "owner cannot be kicked")
	req.ErrorIs(f.o.Ban(ctx, f.room, f.owner, f.owner), core.ErrForbidden)

	// Admins can moderate; only the owner grants admin.
	req.ErrorIs(f.o.SetAdmin(ctx, f.room, "alice", "bob", true), core.ErrForbidden)
	req.NoError(f.o.SetAdmin(ctx, f.room, f.owner, "alice", true))
	req.NoError(f.o.Mute(ctx, f.room, "alice", "bob", time.Minute))
}

func TestTransferOwnership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.NoError(f.o.JoinRoom(ctx, f.room, "alice"))
	req.ErrorIs(f.o.TransferOwnership(ctx, f.room, f.owner, "stranger"), core.ErrNotAMember)
	req.NoError(f.o.TransferOwnership(ctx, f.room, f.owner, "alice"))

	r, err := f.st.Room(ctx, f.room)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), r.Owner)

	// The old owner lost owner-only powers and may now leave.
	req.ErrorIs(f.o.SetAdmin(ctx, f.room, f.owner, "alice", true), core.ErrForbidden)
	req.NoError(f.o.LeaveRoom(ctx, f.room, f.owner))
}

func TestMultiDeviceDelivery(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.enroll(t, f.owner)
	_, phone := f.enroll(t, "alice")
	laptop := &fakeTransport{}
	_, err := f.o.Connect(ctx, f.room, "alice", laptop)
	req.NoError(err)

	_, err = f.o.SendMessage(ctx, f.room, f.owner, domain.MessageText, "ping")
	req.NoError(err)
	req.Equal(1, phone.countKind(t, core.KindMessage))
	req.Equal(1, laptop.countKind(t, core.KindMessage))
}

func TestTyping_LeaveEmitsStoppedTypingOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, ownerTr := f.enroll(t, f.owner)
	f.enroll(t, "alice")

	req.NoError(f.o.Typing(ctx, f.room, "alice"))
	req.Equal(1, ownerTr.countKind(t, core.KindTyping))
	req.ElementsMatch([]domain.UserID{"alice"}, f.o.ActiveTypers(f.room))

	req.NoError(f.o.LeaveRoom(ctx, f.room, "alice"))
	req.Equal(1, ownerTr.countKind(t, core.KindStoppedTyping))
	req.Empty(f.o.ActiveTypers(f.room))
	req.ElementsMatch([]domain.UserID{"owner"}, f.o.Rooms.MembersOf(f.room))
}

func TestDisconnect_ClearsTypingAndSubscriptions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, ownerTr := f.enroll(t, f.owner)
	aliceConn, aliceTr := f.enroll(t, "alice")

	req.NoError(f.o.Typing(ctx, f.room, "alice"))
	f.o.Disconnect(aliceConn)
	f.o.Disconnect(aliceConn) // idempotent

	req.True(aliceTr.Closed())
	req.Equal(core.CloseNormal, aliceTr.closeCode)
	req.Equal(1, ownerTr.countKind(t, core.KindStoppedTyping))
	req.ElementsMatch([]domain.UserID{"owner"}, f.o.Rooms.MembersOf(f.room))
	req.False(f.o.Registry.Has("alice"))
}

func TestSendMessage_DeadReceiverIsKicked(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")
	req.NoError(f.o.JoinRoom(ctx, f.room, "bob"))
	bobTr := &fakeTransport{failSend: true}
	_, err := f.o.Connect(ctx, f.room, "bob", bobTr)
	req.NoError(err)

	msg, err := f.o.SendMessage(ctx, f.room, f.owner, domain.MessageText, "hello")
	req.NoError(err)
	req.Equal(domain.MessageText, msg.Type)

	req.Equal(1, aliceTr.countKind(t, core.KindMessage), "healthy receivers unaffected")
	req.True(bobTr.Closed(), "backpressure policy kicks the dead connection")
	req.Equal(core.CloseDeliveryFailed, bobTr.closeCode)
	req.False(f.o.Registry.Has("bob"))
	req.NotContains(f.o.Rooms.MembersOf(f.room), domain.UserID("bob"))
}

func TestLeaveRoom_Rules(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.ErrorIs(f.o.LeaveRoom(ctx, f.room, f.owner), core.ErrForbidden, "owner transfers or deletes instead")
	req.ErrorIs(f.o.LeaveRoom(ctx, f.room, "stranger"), core.ErrNotAMember)
	req.ErrorIs(f.o.LeaveRoom(ctx, "no-such-room", "alice"), core.ErrRoomNotFound)
}

func TestJoinRoom_Duplicate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.NoError(f.o.JoinRoom(ctx, f.room, "alice"))
	req.ErrorIs(f.o.JoinRoom(ctx, f.room, "alice"), core.ErrAlreadyMember)
}

func TestDeleteRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	req.ErrorIs(f.o.DeleteRoom(ctx, f.room, "alice"), core.ErrForbidden)
	req.NoError(f.o.DeleteRoom(ctx, f.room, f.owner))

	req.True(aliceTr.Closed())
	req.Equal(core.CloseRoomDeleted, aliceTr.closeCode)
	req.Equal(1, aliceTr.countKind(t, core.KindForcedLeave))

	_, err := f.st.Room(ctx, f.room)
	req.ErrorIs(err, core.ErrRoomNotFound)
	_, err = f.o.Connect(ctx, f.room, "alice", &fakeTransport{})
	req.ErrorIs(err, core.ErrRoomNotFound)
}

func TestShutdown_ClosesEverything(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, ownerTr := f.enroll(t, f.owner)
	_, aliceTr := f.enroll(t, "alice")

	f.o.Shutdown()
	req.True(ownerTr.Closed())
	req.True(aliceTr.Closed())
	req.Equal(0, f.o.Registry.Len())
}
