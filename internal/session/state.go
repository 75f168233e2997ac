package session

import "fmt"

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDisconnected
	StateReconnecting
	StateExpired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateExpired:
		return "expired"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the session has been torn down.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateClosed
}
