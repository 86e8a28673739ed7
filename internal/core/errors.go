package core

import "errors"

// Rejections surface to the caller with no side effect; transport-level
// failures are recovered internally by tearing down the failing connection.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotAMember      = errors.New("not a member")
	ErrBanned          = errors.New("banned")
	ErrMuted           = errors.New("muted")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyMember   = errors.New("already a member")
	ErrForbidden       = errors.New("forbidden")
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrAlreadyClosed   = errors.New("connection already closed")
)
