package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// roomState holds the live subscriptions of one room. All mutations for
// the room serialize on its own mutex; rooms never share a lock.
//
// banned is the in-memory tombstone written by Evict and re-checked by
// Join under the same mutex, so a join racing a ban eviction can never
// slip a subscription in after the eviction completed.
type roomState struct {
	mu      sync.Mutex
	members map[domain.UserID]map[core.ConnID]*Conn
	banned  map[domain.UserID]struct{}
}

func newRoomState() *roomState {
	return &roomState{
		members: make(map[domain.UserID]map[core.ConnID]*Conn),
		banned:  make(map[domain.UserID]struct{}),
	}
}

// Index maps rooms to the connections of their currently-connected
// members. It tracks live subscriptions only; the durable roster lives
// in the membership store and must be checked before Join.
type Index struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewIndex() *Index {
	return &Index{rooms: make(map[domain.RoomID]*roomState)}
}

func (ix *Index) room(id domain.RoomID) *roomState {
	ix.mu.RLock()
	rs, ok := ix.rooms[id]
	ix.mu.RUnlock()
	if ok {
		return rs
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if rs, ok = ix.rooms[id]; ok {
		return rs
	}
	rs = newRoomState()
	ix.rooms[id] = rs
	return rs
}

// Join subscribes a connection to a room. The caller must already have
// verified durable membership; Join re-checks the ban tombstone under
// the room lock.
func (ix *Index) Join(room domain.RoomID, c *Conn) error {
	rs := ix.room(room)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, banned := rs.banned[c.User]; banned {
		return core.ErrBanned
	}
	conns, ok := rs.members[c.User]
	if !ok {
		conns = make(map[core.ConnID]*Conn)
		rs.members[c.User] = conns
	}
	conns[c.ID] = c
	log.Info().Str("module", "app.membership").Str("room", string(room)).Str("user", string(c.User)).Str("conn", string(c.ID)).Msg("subscribed")
	return nil
}

// Leave removes one connection's subscription. Returns true when the
// user no longer has any live subscription to the room.
func (ix *Index) Leave(room domain.RoomID, c *Conn) bool {
	rs := ix.room(room)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	conns, ok := rs.members[c.User]
	if !ok {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(rs.members, c.User)
		return true
	}
	return false
}

// LeaveAll removes every subscription held by the connection. Invoked
// by the registry teardown path so the index can never hold an entry
// for a connection that is gone. Returns the rooms in which the owning
// user no longer has any live connection.
func (ix *Index) LeaveAll(c *Conn) []domain.RoomID {
	ix.mu.RLock()
	snapshot := make(map[domain.RoomID]*roomState, len(ix.rooms))
	for id, rs := range ix.rooms {
		snapshot[id] = rs
	}
	ix.mu.RUnlock()

	var gone []domain.RoomID
	for id, rs := range snapshot {
		rs.mu.Lock()
		if conns, ok := rs.members[c.User]; ok {
			if _, had := conns[c.ID]; had {
				delete(conns, c.ID)
				if len(conns) == 0 {
					delete(rs.members, c.User)
					gone = append(gone, id)
				}
			}
		}
		rs.mu.Unlock()
	}
	return gone
}

// MembersOf returns the live, connected members only; not the durable
// roster.
func (ix *Index) MembersOf(room domain.RoomID) []domain.UserID {
	rs := ix.room(room)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]domain.UserID, 0, len(rs.members))
	for u := range rs.members {
		out = append(out, u)
	}
	return out
}

// ConnsOf snapshots the room's connections under the room lock so the
// caller can send outside it.
func (ix *Index) ConnsOf(room domain.RoomID, except ...domain.UserID) []*Conn {
	skip := make(map[domain.UserID]struct{}, len(except))
	for _, u := range except {
		skip[u] = struct{}{}
	}
	rs := ix.room(room)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []*Conn
	for u, conns := range rs.members {
		if _, ok := skip[u]; ok {
			continue
		}
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// Evict removes all of the user's subscriptions to the room. When ban
// is set the tombstone is recorded in the same critical section, which
// makes the eviction atomic with respect to racing joins. The evicted
// connections are returned so the caller can emit forced-leave frames
// and close them outside the lock.
func (ix *Index) Evict(room domain.RoomID, user domain.UserID, ban bool) []*Conn {
	rs := ix.room(room)
	rs.mu.Lock()
	var evicted []*Conn
	for _, c := range rs.members[user] {
		evicted = append(evicted, c)
	}
	delete(rs.members, user)
	if ban {
		rs.banned[user] = struct{}{}
	}
	rs.mu.Unlock()
	if len(evicted) > 0 || ban {
		log.Info().Str("module", "app.membership").Str("room", string(room)).Str("user", string(user)).Bool("ban", ban).Int("evicted", len(evicted)).Msg("evicted")
	}
	return evicted
}

// ClearBan lifts the in-memory ban tombstone after an explicit unban.
func (ix *Index) ClearBan(room domain.RoomID, user domain.UserID) {
	rs := ix.room(room)
	rs.mu.Lock()
	delete(rs.banned, user)
	rs.mu.Unlock()
}

// DropRoom removes the whole room from the index and returns every
// connection that was subscribed to it.
func (ix *Index) DropRoom(room domain.RoomID) []*Conn {
	ix.mu.Lock()
	rs, ok := ix.rooms[room]
	delete(ix.rooms, room)
	ix.mu.Unlock()
	if !ok {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []*Conn
	for _, conns := range rs.members {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	rs.members = make(map[domain.UserID]map[core.ConnID]*Conn)
	return out
}
