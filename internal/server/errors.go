package server

import "fmt"

// ConnectionFault wraps a socket-level I/O failure or timeout. It triggers
// the owning handler's cleanup and never propagates past it.
type ConnectionFault struct {
	Session string
	Err     error
}

func (e *ConnectionFault) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Session, e.Err)
}

func (e *ConnectionFault) Unwrap() error { return e.Err }
