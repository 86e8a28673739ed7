package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

func newTestStore(t *testing.T, historyLimit int) *Badger {
	t.Helper()
	st, err := Open(t.TempDir(), historyLimit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBadger_Users(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	u, err := domain.NewUser("alice")
	req.NoError(err)
	req.NoError(st.CreateUser(ctx, u, "hash-of-secret"))

	got, err := st.UserByID(ctx, u.ID)
	req.NoError(err)
	req.Equal("alice", got.Username)

	byName, hash, err := st.UserByName(ctx, "alice")
	req.NoError(err)
	req.Equal(u.ID, byName.ID)
	req.Equal("hash-of-secret", hash)

	dup, err := domain.NewUser("alice")
	req.NoError(err)
	req.ErrorIs(st.CreateUser(ctx, dup, "other"), ErrUsernameTaken)

	_, err = st.UserByID(ctx, "missing")
	req.ErrorIs(err, core.ErrUserNotFound)
	_, _, err = st.UserByName(ctx, "nobody")
	req.ErrorIs(err, core.ErrUserNotFound)
}

func TestBadger_Rooms(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	r1, err := domain.NewRoom("general", "owner")
	req.NoError(err)
	r2, err := domain.NewRoom("random", "owner")
	req.NoError(err)
	req.NoError(st.CreateRoom(ctx, r1))
	req.NoError(st.CreateRoom(ctx, r2))

	all, err := st.Rooms(ctx)
	req.NoError(err)
	req.Len(all, 2)

	req.NoError(st.SetOwner(ctx, r1.ID, "alice"))
	got, err := st.Room(ctx, r1.ID)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), got.Owner)

	_, err = st.Room(ctx, "missing")
	req.ErrorIs(err, core.ErrRoomNotFound)
	req.ErrorIs(st.SetOwner(ctx, "missing", "alice"), core.ErrRoomNotFound)
}

func TestBadger_DeleteRoomCascades(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	r, err := domain.NewRoom("doomed", "owner")
	req.NoError(err)
	req.NoError(st.CreateRoom(ctx, r))
	req.NoError(st.AddMember(ctx, r.ID, "owner", true))
	req.NoError(st.AddMember(ctx, r.ID, "alice", false))
	_, err = st.AppendMessage(ctx, r.ID, "owner", domain.MessageText, "bye")
	req.NoError(err)

	req.NoError(st.DeleteRoom(ctx, r.ID))

	_, err = st.Room(ctx, r.ID)
	req.ErrorIs(err, core.ErrRoomNotFound)
	members, err := st.Members(ctx, r.ID)
	req.NoError(err)
	req.Empty(members)
	msgs, _, err := st.Messages(ctx, r.ID, nil)
	req.NoError(err)
	req.Empty(msgs)

	req.ErrorIs(st.DeleteRoom(ctx, r.ID), core.ErrRoomNotFound)
}

func TestBadger_MembershipFlags(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()
	room := domain.RoomID("general")

	req.NoError(st.AddMember(ctx, room, "alice", false))
	req.ErrorIs(st.AddMember(ctx, room, "alice", false), core.ErrAlreadyMember)

	ok, err := st.IsMember(ctx, room, "alice")
	req.NoError(err)
	req.True(ok)

	until := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	req.NoError(st.Mute(ctx, room, "alice", until))
	expiry, muted, err := st.MuteState(ctx, room, "alice")
	req.NoError(err)
	req.True(muted)
	req.True(expiry.Equal(until))

	req.NoError(st.Unmute(ctx, room, "alice"))
	_, muted, err = st.MuteState(ctx, room, "alice")
	req.NoError(err)
	req.False(muted)

	req.NoError(st.Ban(ctx, room, "alice"))
	banned, err := st.IsBanned(ctx, room, "alice")
	req.NoError(err)
	req.True(banned)
	req.NoError(st.Unban(ctx, room, "alice"))

	req.NoError(st.SetAdmin(ctx, room, "alice", true))
	isAdmin, err := st.IsAdmin(ctx, room, "alice")
	req.NoError(err)
	req.True(isAdmin)

	req.ErrorIs(st.Mute(ctx, room, "stranger", until), core.ErrNotAMember)

	req.NoError(st.RemoveMember(ctx, room, "alice"))
	ok, err = st.IsMember(ctx, room, "alice")
	req.NoError(err)
	req.False(ok)
}

func TestBadger_MessagesPaging(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 3)
	ctx := context.Background()
	room := domain.RoomID("general")

	for i := 0; i < 7; i++ {
		_, err := st.AppendMessage(ctx, room, "alice", domain.MessageText, fmt.Sprintf("msg-%d", i))
		req.NoError(err)
	}

	// Newest first, three per page per the history limit.
	page1, cursor, err := st.Messages(ctx, room, nil)
	req.NoError(err)
	req.Len(page1, 3)
	req.NotNil(cursor)
	req.Equal("msg-6", page1[0].Content)
	req.Equal("msg-4", page1[2].Content)

	page2, cursor, err := st.Messages(ctx, room, cursor)
	req.NoError(err)
	req.Len(page2, 3)
	req.Equal("msg-3", page2[0].Content)
	req.Equal("msg-1", page2[2].Content)

	page3, cursor, err := st.Messages(ctx, room, cursor)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal("msg-0", page3[0].Content)

	// Resuming past the oldest message yields an empty page.
	if cursor != nil {
		empty, _, err := st.Messages(ctx, room, cursor)
		req.NoError(err)
		req.Empty(empty)
	}
}

func TestBadger_MessagesIsolatedPerRoom(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "general", "alice", domain.MessageText, "in general")
	req.NoError(err)
	_, err = st.AppendMessage(ctx, "random", "alice", domain.MessageText, "in random")
	req.NoError(err)

	msgs, _, err := st.Messages(ctx, "general", nil)
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("in general", msgs[0].Content)
}

func TestBadger_AppendMessageValidates(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	_, err := st.AppendMessage(ctx, "general", "alice", domain.MessageText, "")
	req.ErrorIs(err, domain.ErrMessageEmpty)
	_, err = st.AppendMessage(ctx, "general", "alice", "video", "nope")
	req.ErrorIs(err, domain.ErrUnknownMessageType)

	msgs, _, err := st.Messages(ctx, "general", nil)
	req.NoError(err)
	req.Empty(msgs)
}

func TestBadger_Notifications(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	n1 := domain.NewNotification("alice", domain.NoticeMute, "general", "muted", 300)
	n2 := domain.NewNotification("alice", domain.NoticeUnmute, "general", "unmuted", 0)
	other := domain.NewNotification("bob", domain.NoticeKick, "general", "kicked", 0)
	req.NoError(st.AddNotification(ctx, n1))
	req.NoError(st.AddNotification(ctx, n2))
	req.NoError(st.AddNotification(ctx, other))

	all, err := st.Notifications(ctx, "alice", false)
	req.NoError(err)
	req.Len(all, 2, "only alice's notices")

	req.NoError(st.MarkRead(ctx, "alice", n1.ID))
	unread, err := st.Notifications(ctx, "alice", true)
	req.NoError(err)
	req.Len(unread, 1)
	req.Equal(n2.ID, unread[0].ID)

	req.ErrorIs(st.MarkRead(ctx, "alice", other.ID), ErrNotificationNotFound, "cannot read someone else's notice")
}

func TestBadger_MarkAllRead(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t, 50)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n := domain.NewNotification("alice", domain.NoticeMute, "general", fmt.Sprintf("notice-%d", i), 0)
		req.NoError(st.AddNotification(ctx, n))
	}
	bob := domain.NewNotification("bob", domain.NoticeKick, "general", "kicked", 0)
	req.NoError(st.AddNotification(ctx, bob))

	req.NoError(st.MarkAllRead(ctx, "alice"))

	unread, err := st.Notifications(ctx, "alice", true)
	req.NoError(err)
	req.Empty(unread)
	all, err := st.Notifications(ctx, "alice", false)
	req.NoError(err)
	req.Len(all, 3, "marking read deletes nothing")

	unread, err = st.Notifications(ctx, "bob", true)
	req.NoError(err)
	req.Len(unread, 1, "other users' notices untouched")

	req.NoError(st.MarkAllRead(ctx, "alice"), "idempotent with nothing unread")
	req.NoError(st.MarkAllRead(ctx, "nobody"))
}
