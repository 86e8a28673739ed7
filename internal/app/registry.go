package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// Conn is the registry-owned handle for one live transport channel.
// A single identity may hold any number of them (multi-device).
type Conn struct {
	ID        core.ConnID
	User      domain.UserID
	Transport core.Transport
	CreatedAt time.Time
}

// Registry maps authenticated identities to their live connections and
// owns the connection lifecycle. Constructed at process start and torn
// down by CloseAll; never a package-level singleton.
type Registry struct {
	mu     sync.RWMutex
	byID   map[core.ConnID]*Conn
	byUser map[domain.UserID]map[core.ConnID]*Conn

	// onEvict runs after a connection is removed so room subscriptions
	// are cleaned up in the same teardown path. Set once during wiring.
	onEvict func(*Conn)
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[core.ConnID]*Conn),
		byUser: make(map[domain.UserID]map[core.ConnID]*Conn),
	}
}

func (r *Registry) OnEvict(fn func(*Conn)) { r.onEvict = fn }

// Register adds a connection and makes the identity visible to lookups.
// Fails when the transport is already closed at registration time.
func (r *Registry) Register(user domain.UserID, tr core.Transport) (*Conn, error) {
	if tr.Closed() {
		return nil, core.ErrAlreadyClosed
	}
	c := &Conn{
		ID:        core.ConnID(uuid.NewString()),
		User:      user,
		Transport: tr,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.byID[c.ID] = c
	conns, ok := r.byUser[user]
	if !ok {
		conns = make(map[core.ConnID]*Conn)
		r.byUser[user] = conns
	}
	conns[c.ID] = c
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(c.ID)).Str("user", string(user)).Msg("registered connection")
	return c, nil
}

// Unregister removes the connection. Removing an already-removed handle
// is a no-op; the return value reports whether this call removed it.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	if _, ok := r.byID[c.ID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, c.ID)
	if conns, ok := r.byUser[c.User]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(r.byUser, c.User)
		}
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(c.ID)).Str("user", string(c.User)).Msg("unregistered connection")
	return true
}

// ConnectionsFor returns the live set at call time; may be empty.
func (r *Registry) ConnectionsFor(user domain.UserID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.byUser[user]))
	for _, c := range r.byUser[user] {
		out = append(out, c)
	}
	return out
}

// Has reports whether the identity holds at least one live connection.
func (r *Registry) Has(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Send delivers best-effort. A transport-level failure tears the
// connection down (including its room subscriptions via the eviction
// hook) and is reported as ErrDeliveryFailed; it never propagates
// beyond this one connection.
func (r *Registry) Send(c *Conn, f core.Frame) error {
	if err := c.Transport.TrySend(f); err != nil {
		r.Drop(c, core.CloseDeliveryFailed, "delivery failed")
		return fmt.Errorf("%w: %v", core.ErrDeliveryFailed, err)
	}
	return nil
}

// Drop force-closes a connection and cleans up its subscriptions.
// Safe to call concurrently with in-flight broadcasts and idempotent.
func (r *Registry) Drop(c *Conn, code int, reason string) {
	if !r.Unregister(c) {
		return
	}
	c.Transport.Close(code, reason)
	if r.onEvict != nil {
		r.onEvict(c)
	}
}

// CloseAll is the shutdown path: every connection is closed and removed.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.byID = make(map[core.ConnID]*Conn)
	r.byUser = make(map[domain.UserID]map[core.ConnID]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Transport.Close(core.CloseGoingAway, "server shutting down")
		if r.onEvict != nil {
			r.onEvict(c)
		}
	}
	log.Info().Str("module", "app.registry").Int("count", len(conns)).Msg("closed all connections")
}
