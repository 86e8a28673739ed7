package core

// Close codes sent at the transport boundary. The 4xxx range follows the
// WebSocket convention for application-defined codes; clients use them to
// distinguish why a connection was refused or torn down.
const (
	CloseNormal         = 1000
	CloseGoingAway      = 1001
	CloseNotAMember     = 4003
	CloseRoomNotFound   = 4004
	CloseBanned         = 4005
	CloseKicked         = 4006
	CloseRoomDeleted    = 4007
	CloseDeliveryFailed = 4008
)
