package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

func conn(user domain.UserID) *Conn {
	return &Conn{ID: core.ConnID(string(user) + "-conn"), User: user, Transport: &fakeTransport{}}
}

func TestIndex_JoinLeave(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("general")

	alice := conn("alice")
	req.NoError(ix.Join(room, alice))
	req.ElementsMatch([]domain.UserID{"alice"}, ix.MembersOf(room))

	req.True(ix.Leave(room, alice), "last connection gone means user gone")
	req.Empty(ix.MembersOf(room))
}

func TestIndex_MultiDeviceLeave(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("general")

	phone := &Conn{ID: "alice-phone", User: "alice", Transport: &fakeTransport{}}
	laptop := &Conn{ID: "alice-laptop", User: "alice", Transport: &fakeTransport{}}
	req.NoError(ix.Join(room, phone))
	req.NoError(ix.Join(room, laptop))

	req.False(ix.Leave(room, phone), "user still present via the other device")
	req.ElementsMatch([]domain.UserID{"alice"}, ix.MembersOf(room))
	req.True(ix.Leave(room, laptop))
	req.Empty(ix.MembersOf(room))
}

func TestIndex_LeaveAll(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()

	phone := &Conn{ID: "alice-phone", User: "alice", Transport: &fakeTransport{}}
	laptop := &Conn{ID: "alice-laptop", User: "alice", Transport: &fakeTransport{}}
	req.NoError(ix.Join("general", phone))
	req.NoError(ix.Join("random", phone))
	req.NoError(ix.Join("general", laptop))

	gone := ix.LeaveAll(phone)
	req.ElementsMatch([]domain.RoomID{"random"}, gone, "still in general via laptop")
	req.ElementsMatch([]domain.UserID{"alice"}, ix.MembersOf("general"))
	req.Empty(ix.MembersOf("random"))
}

func TestIndex_EvictWithBanBlocksRejoin(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("general")

	alice := conn("alice")
	bob := conn("bob")
	req.NoError(ix.Join(room, alice))
	req.NoError(ix.Join(room, bob))

	evicted := ix.Evict(room, "alice", true)
	req.Len(evicted, 1)
	req.Equal(alice.ID, evicted[0].ID)
	req.ElementsMatch([]domain.UserID{"bob"}, ix.MembersOf(room))

	// A racing join that lost the ban race is refused under the same lock.
	req.ErrorIs(ix.Join(room, conn("alice")), core.ErrBanned)

	ix.ClearBan(room, "alice")
	req.NoError(ix.Join(room, conn("alice")))
}

func TestIndex_EvictWithoutBanAllowsRejoin(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("general")

	req.NoError(ix.Join(room, conn("alice")))
	ix.Evict(room, "alice", false)
	req.NoError(ix.Join(room, conn("alice")), "kick is not a ban")
}

func TestIndex_ConnsOfExcludes(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("general")

	req.NoError(ix.Join(room, conn("alice")))
	req.NoError(ix.Join(room, conn("bob")))
	req.NoError(ix.Join(room, conn("carol")))

	conns := ix.ConnsOf(room, "bob")
	req.Len(conns, 2)
	for _, c := range conns {
		req.NotEqual(domain.UserID("bob"), c.User)
	}
}

func TestIndex_DropRoom(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	room := domain.RoomID("doomed")

	req.NoError(ix.Join(room, conn("alice")))
	req.NoError(ix.Join(room, conn("bob")))

	out := ix.DropRoom(room)
	req.Len(out, 2)
	req.Empty(ix.MembersOf(room))
	req.Nil(ix.DropRoom(room), "second drop finds nothing")
}
