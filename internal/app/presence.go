package app

import (
	"sync"
	"time"

	"github.com/avekas/parley/internal/domain"
)

// Presence tracks ephemeral "is typing" marks per room per user.
// Marks are advisory, never persisted, and expire lazily: reads filter
// by TTL regardless of cleanup timing.
type Presence struct {
	mu       sync.Mutex
	marks    map[domain.RoomID]map[domain.UserID]time.Time
	lastSent map[domain.RoomID]map[domain.UserID]time.Time

	ttl      time.Duration
	debounce time.Duration
	now      func() time.Time
}

func NewPresence(ttl, debounce time.Duration) *Presence {
	return &Presence{
		marks:    make(map[domain.RoomID]map[domain.UserID]time.Time),
		lastSent: make(map[domain.RoomID]map[domain.UserID]time.Time),
		ttl:      ttl,
		debounce: debounce,
		now:      time.Now,
	}
}

// MarkTyping refreshes the user's mark and reports whether a typing
// broadcast should go out: at most once per debounce window per
// (room, user). Faster calls are coalesced, not queued.
func (p *Presence) MarkTyping(room domain.RoomID, user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()

	marks, ok := p.marks[room]
	if !ok {
		marks = make(map[domain.UserID]time.Time)
		p.marks[room] = marks
	}
	marks[user] = now

	sent, ok := p.lastSent[room]
	if !ok {
		sent = make(map[domain.UserID]time.Time)
		p.lastSent[room] = sent
	}
	if last, ok := sent[user]; ok && now.Sub(last) < p.debounce {
		return false
	}
	sent[user] = now
	return true
}

// ClearTyping removes the mark and reports whether a live (non-expired)
// mark existed, so callers broadcast stopped-typing only when the room
// actually saw the user as typing.
func (p *Presence) ClearTyping(room domain.RoomID, user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	existed := false
	if marks, ok := p.marks[room]; ok {
		if at, ok := marks[user]; ok {
			existed = p.now().Sub(at) <= p.ttl
			delete(marks, user)
		}
	}
	if sent, ok := p.lastSent[room]; ok {
		delete(sent, user)
	}
	return existed
}

// ActiveTypers returns the users with a non-expired mark. Diagnostics
// only; delivery correctness does not depend on it.
func (p *Presence) ActiveTypers(room domain.RoomID) []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	var out []domain.UserID
	for u, at := range p.marks[room] {
		if now.Sub(at) <= p.ttl {
			out = append(out, u)
		}
	}
	return out
}

// Sweep drops expired entries. Optional: only bounds memory, expiry
// itself is enforced at read time.
func (p *Presence) Sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for room, marks := range p.marks {
		for u, at := range marks {
			if now.Sub(at) > p.ttl {
				delete(marks, u)
				if sent, ok := p.lastSent[room]; ok {
					delete(sent, u)
				}
			}
		}
		if len(marks) == 0 {
			delete(p.marks, room)
			delete(p.lastSent, room)
		}
	}
}

// Run sweeps periodically until the stop channel closes.
func (p *Presence) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}
