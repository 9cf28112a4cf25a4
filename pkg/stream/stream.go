package stream

import "coinsbridge/internal/transport"

// ConnState re-exports the transport connection state for consumers that
// observe the session without importing internal packages.
type ConnState = transport.ConnState

const (
	StateDisconnected = transport.StateDisconnected
	StateConnecting   = transport.StateConnecting
	StateConnected    = transport.StateConnected
	StateReconnecting = transport.StateReconnecting
	StateClosed       = transport.StateClosed
)
