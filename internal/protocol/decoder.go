package protocol

import (
	"bytes"
	"io"
)

// MaxRecordLen bounds a single record line. Input that grows past it
// without a newline is malformed.
const MaxRecordLen = 4096

// Decoder turns a raw byte stream into records. Partial lines stay buffered
// across calls until their newline arrives, so reads split mid-record are
// harmless.
type Decoder struct {
	r   io.Reader
	buf []byte
	tmp [512]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 0, 512)}
}

// Next returns the next complete record, blocking on the underlying reader
// until one is available. Empty lines are skipped; a lone trailing carriage
// return is tolerated. Read errors surface once already-buffered complete
// records are drained.
func (d *Decoder) Next() (Record, error) {
	for {
		if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
			line := bytes.TrimSuffix(d.buf[:i], []byte{'\r'})
			rec, err := parseLine(line)
			d.consume(i + 1)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}
			return rec, nil
		}
		if len(d.buf) > MaxRecordLen {
			rec := string(d.buf)
			d.buf = d.buf[:0]
			return nil, &ProtocolError{Record: clip(rec), Reason: "record exceeds length bound"}
		}
		n, err := d.r.Read(d.tmp[:])
		if n > 0 {
			d.buf = append(d.buf, d.tmp[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseLine(line []byte) (Record, error) {
	if len(line) == 0 {
		return nil, nil
	}
	return Parse(string(line))
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
