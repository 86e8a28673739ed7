package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avekas/parley/internal/core"
)

// fakeTransport records frames and close calls; failSend simulates a
// dead socket.
type fakeTransport struct {
	mu          sync.Mutex
	frames      []core.Frame
	closed      bool
	failSend    bool
	closeCode   int
	closeReason string
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

func (t *fakeTransport) Close(code int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.closeCode = code
	t.closeReason = reason
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
	tb.Helper()
	n := 0
	for _, ev := range t.events(tb) {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
