package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// PublishResult reports delivery stats and backpressured connections to
// the orchestrator's policy.
type PublishResult struct {
	SentTo  int
	Dropped []*Conn
}

// Router fans events out to the live connections of a room. It encodes
// the envelope once, snapshots the member set under the room lock, and
// performs every send outside of it so one slow or dead connection
// never blocks the rest.
type Router struct {
	rooms *Index
}

func NewRouter(rooms *Index) *Router {
	return &Router{rooms: rooms}
}

// Room broadcasts the event to every connection currently subscribed,
// minus the excluded identities. Each send is isolated: failures land
// in the result for the caller's policy, delivery to the remaining
// recipients continues. Joins and leaves racing the send window may or
// may not be included.
func (rt *Router) Room(room domain.RoomID, ev core.Event, except ...domain.UserID) PublishResult {
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("room", string(room)).Msg("encode event")
		return PublishResult{}
	}

	res := PublishResult{}
	for _, c := range rt.rooms.ConnsOf(room, except...) {
		if err := c.Transport.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).Str("kind", string(ev.Kind)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
