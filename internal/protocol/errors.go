package protocol

import "fmt"

// ProtocolError reports a malformed wire record: wrong field count, a
// non-numeric value in a numeric slot, an out-of-range value, or an opcode
// the server does not know. The connection that produced it is closed;
// nothing else is affected.
type ProtocolError struct {
	Record string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bad record %q: %s", e.Record, e.Reason)
}

func badCount(line string, want, got int) error {
	return &ProtocolError{Record: clip(line), Reason: fmt.Sprintf("expected %d fields, got %d", want, got)}
}

func badField(line, name, reason string) error {
	return &ProtocolError{Record: clip(line), Reason: fmt.Sprintf("field %s %s", name, reason)}
}

func clip(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
