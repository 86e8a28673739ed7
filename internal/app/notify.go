package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// Dispatcher delivers moderation and ownership notices point-to-point:
// every live connection of the target identity gets the frame no matter
// which room it is attached to. Delivery is synchronous inside the
// calling operation, so ordering and failures stay observable; no
// detached goroutine per notice.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Notify relays the notice verbatim (the dispatcher interprets none of
// its fields) and returns the number of connections reached. Zero is
// fine: the unread copy already lives in the notification store.
func (d *Dispatcher) Notify(user domain.UserID, n domain.Notification) int {
	ev := core.NewEvent(core.KindModerationNotice, n.Room, "", n)
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.notify").Msg("encode notice")
		return 0
	}

	delivered := 0
	for _, c := range d.reg.ConnectionsFor(user) {
		if err := d.reg.Send(c, frame); err != nil {
			log.Warn().Err(err).Str("module", "app.notify").Str("conn", string(c.ID)).Msg("notice delivery failed")
			continue
		}
		delivered++
	}
	log.Debug().Str("module", "app.notify").Str("user", string(user)).Str("notice", string(n.Type)).Int("delivered", delivered).Msg("notified")
	return delivered
}
