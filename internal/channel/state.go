package channel

import "sync/atomic"

// State is a listener's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateReconnecting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "waiting"
	case StateReconnecting:
		return "reconnecting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateVar holds a State readable from other goroutines.
type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) set(st State) { s.v.Store(int32(st)) }
func (s *stateVar) get() State   { return State(s.v.Load()) }
