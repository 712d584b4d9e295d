package world

import "fmt"

// OutOfRangeError rejects a block edit outside the configured vertical
// bounds. The edit is dropped; the connection that sent it stays open.
type OutOfRangeError struct {
	X, Y, Z    int
	MinY, MaxY int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("block (%d,%d,%d) outside y range [%d,%d]", e.X, e.Y, e.Z, e.MinY, e.MaxY)
}
