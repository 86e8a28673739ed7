package core

// Frame is an encoded outbound payload.
type Frame []byte

// ConnID identifies one live connection; an identity may own several.
type ConnID string

// Transport abstracts one live client channel.
// Owned by the adapter; the adapter must Close() it.
type Transport interface {
	// TrySend enqueues without blocking. It returns an error when the
	// transport is closed or its buffer is full (backpressure).
	TrySend(Frame) error
	// Close terminates the transport with a close code and reason where
	// the protocol supports one. Idempotent.
	Close(code int, reason string)
	// Closed reports whether the transport has been closed.
	Closed() bool
}
