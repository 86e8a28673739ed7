package app

// BackpressureAction decides what happens to a connection that could
// not keep up with a broadcast.
type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickConnection
	DropFrame
)

type Policy interface {
	OnBackPressure(c *Conn) BackpressureAction
}

// SimplePolicy tears down any connection whose send buffer overflowed;
// the client is expected to reconnect.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(c *Conn) BackpressureAction {
	return KickConnection
}
