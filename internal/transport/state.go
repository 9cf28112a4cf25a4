package transport

import "sync/atomic"

// ConnState is the websocket connection lifecycle state.
type ConnState int32

const (
	// StateDisconnected means no connection is established.
	StateDisconnected ConnState = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the connection is live.
	StateConnected
	// StateReconnecting means the client is re-dialing after a drop.
	StateReconnecting
	// StateClosed means the client was shut down and will not re-dial.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connState is an atomic ConnState cell shared between the dial path and
// the gws callback goroutine.
type connState struct {
	v atomic.Int32
}

func (s *connState) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *connState) Store(state ConnState) {
	s.v.Store(int32(state))
}

func (s *connState) CompareAndSwap(old, new ConnState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}
