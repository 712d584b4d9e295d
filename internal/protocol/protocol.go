// Package protocol implements the Craft wire protocol: newline-delimited
// ASCII records whose comma-separated fields start with a one-letter opcode.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcodes on the wire.
const (
	OpAuthenticate = "A"
	OpBlock        = "B"
	OpChunk        = "C"
	OpDisconnect   = "D"
	OpKey          = "K"
	OpNick         = "N"
	OpPosition     = "P"
	OpRedraw       = "R"
	OpTalk         = "T"
	OpTime         = "E"
	OpVersion      = "V"
	OpYou          = "U"
)

// ProtoVersion is the only protocol revision accepted in V records.
const ProtoVersion = 1

// Record is one decoded client message.
type Record interface {
	Op() string
}

// Version is the optional V handshake record.
type Version struct {
	Proto int
}

// Authenticate carries an identity claim. The server takes it on trust;
// token validation belongs to an external identity service.
type Authenticate struct {
	Username string
	Token    string
}

// Nick sets the sender's display name.
type Nick struct {
	Name string
}

// Position updates the sender's transform.
type Position struct {
	X, Y, Z float64
	RX, RY  float64
}

// Talk carries chat text; the text may itself contain commas.
type Talk struct {
	Text string
}

// BlockEdit places material W at (X, Y, Z); W of zero removes. P and Q are
// the chunk coordinates the client believes own the block.
type BlockEdit struct {
	P, Q    int
	X, Y, Z int
	W       uint16
}

// ChunkRequest asks for chunk (P, Q) contents newer than Key.
type ChunkRequest struct {
	P, Q int
	Key  uint64
}

// Disconnect is a voluntary goodbye.
type Disconnect struct{}

func (Version) Op() string      { return OpVersion }
func (Authenticate) Op() string { return OpAuthenticate }
func (Nick) Op() string         { return OpNick }
func (Position) Op() string     { return OpPosition }
func (Talk) Op() string         { return OpTalk }
func (BlockEdit) Op() string    { return OpBlock }
func (ChunkRequest) Op() string { return OpChunk }
func (Disconnect) Op() string   { return OpDisconnect }

// Parse decodes a single record line, already stripped of its newline.
func Parse(line string) (Record, error) {
	fields := strings.Split(line, ",")
	switch fields[0] {
	case OpVersion:
		if len(fields) != 2 {
			return nil, badCount(line, 2, len(fields))
		}
		proto, err := intField(line, "proto", fields[1])
		if err != nil {
			return nil, err
		}
		return Version{Proto: proto}, nil

	case OpAuthenticate:
		if len(fields) != 3 {
			return nil, badCount(line, 3, len(fields))
		}
		return Authenticate{Username: fields[1], Token: fields[2]}, nil

	case OpNick:
		if len(fields) != 2 {
			return nil, badCount(line, 2, len(fields))
		}
		return Nick{Name: fields[1]}, nil

	case OpPosition:
		if len(fields) != 6 {
			return nil, badCount(line, 6, len(fields))
		}
		var v [5]float64
		names := [5]string{"x", "y", "z", "rx", "ry"}
		for i := range v {
			f, err := floatField(line, names[i], fields[i+1])
			if err != nil {
				return nil, err
			}
			v[i] = f
		}
		return Position{X: v[0], Y: v[1], Z: v[2], RX: v[3], RY: v[4]}, nil

	case OpTalk:
		if len(fields) < 2 {
			return nil, badCount(line, 2, len(fields))
		}
		return Talk{Text: strings.Join(fields[1:], ",")}, nil

	case OpBlock:
		if len(fields) != 7 {
			return nil, badCount(line, 7, len(fields))
		}
		var v [5]int
		names := [5]string{"p", "q", "x", "y", "z"}
		for i := range v {
			n, err := intField(line, names[i], fields[i+1])
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		w, err := intField(line, "w", fields[6])
		if err != nil {
			return nil, err
		}
		if w < 0 || w > 65535 {
			return nil, badField(line, "w", "outside material range")
		}
		return BlockEdit{P: v[0], Q: v[1], X: v[2], Y: v[3], Z: v[4], W: uint16(w)}, nil

	case OpChunk:
		if len(fields) != 3 && len(fields) != 4 {
			return nil, badCount(line, 4, len(fields))
		}
		p, err := intField(line, "p", fields[1])
		if err != nil {
			return nil, err
		}
		q, err := intField(line, "q", fields[2])
		if err != nil {
			return nil, err
		}
		var key uint64
		if len(fields) == 4 {
			key, err = strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				return nil, badField(line, "key", "is not an unsigned integer")
			}
		}
		return ChunkRequest{P: p, Q: q, Key: key}, nil

	case OpDisconnect:
		if len(fields) != 1 {
			return nil, badCount(line, 1, len(fields))
		}
		return Disconnect{}, nil
	}
	return nil, &ProtocolError{Record: clip(line), Reason: "unknown opcode"}
}

func intField(line, name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badField(line, name, "is not an integer")
	}
	return n, nil
}

func floatField(line, name, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, badField(line, name, "is not a number")
	}
	return f, nil
}

// Encoding. Every encoder returns a complete record including the newline;
// encoding never fails for in-memory values.

func EncodeYou(id int, x, y, z, rx, ry float64) []byte {
	return []byte(fmt.Sprintf("U,%d,%s,%s,%s,%s,%s\n", id, ftoa(x), ftoa(y), ftoa(z), ftoa(rx), ftoa(ry)))
}

func EncodeTime(unix int64, dayLength int) []byte {
	return []byte(fmt.Sprintf("E,%d,%d\n", unix, dayLength))
}

func EncodeTalk(text string) []byte {
	return []byte("T," + text + "\n")
}

func EncodePosition(id int, x, y, z, rx, ry float64) []byte {
	return []byte(fmt.Sprintf("P,%d,%s,%s,%s,%s,%s\n", id, ftoa(x), ftoa(y), ftoa(z), ftoa(rx), ftoa(ry)))
}

func EncodeNick(id int, name string) []byte {
	return []byte(fmt.Sprintf("N,%d,%s\n", id, name))
}

func EncodeBlock(p, q, x, y, z int, w uint16) []byte {
	return []byte(fmt.Sprintf("B,%d,%d,%d,%d,%d,%d\n", p, q, x, y, z, w))
}

func EncodeKey(p, q int, key uint64) []byte {
	return []byte(fmt.Sprintf("K,%d,%d,%d\n", p, q, key))
}

func EncodeRedraw(p, q int) []byte {
	return []byte(fmt.Sprintf("R,%d,%d\n", p, q))
}

func EncodeDisconnect(id int) []byte {
	return []byte(fmt.Sprintf("D,%d\n", id))
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
