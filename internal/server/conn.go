package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"craftwell.io/internal/persistence/eventlog"
	"craftwell.io/internal/protocol"
	"craftwell.io/internal/world"
)

// Connection lifecycle. CLOSING completes to CLOSED exactly once; cleanup
// is guarded by a sync.Once so late errors from the read and write loops
// cannot double-unregister.
const (
	stateConnected int32 = iota
	stateHandshaking
	stateActive
	stateClosing
	stateClosed
)

type conn struct {
	srv     *Server
	nc      net.Conn
	session string
	id      int

	state   atomic.Int32
	out     <-chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(s *Server, nc net.Conn) *conn {
	limit := rate.Inf
	burst := 1
	if s.cfg.ChatRate > 0 {
		limit = rate.Limit(s.cfg.ChatRate)
		burst = s.cfg.ChatBurst
		if burst <= 0 {
			burst = 1
		}
	}
	return &conn{
		srv:     s,
		nc:      nc,
		session: uuid.NewString(),
		limiter: rate.NewLimiter(limit, burst),
		done:    make(chan struct{}),
	}
}

func (c *conn) run(ctx context.Context) {
	s := c.srv
	c.state.Store(stateHandshaking)

	p := s.reg.Register(c.session, "")
	c.id = p.ID
	if _, err := s.reg.UpdateTransform(p.ID, s.cfg.Spawn.X, s.cfg.Spawn.Y, s.cfg.Spawn.Z, s.cfg.Spawn.RX, s.cfg.Spawn.RY); err == nil {
		p.X, p.Y, p.Z, p.RX, p.RY = s.cfg.Spawn.X, s.cfg.Spawn.Y, s.cfg.Spawn.Z, s.cfg.Spawn.RX, s.cfg.Spawn.RY
	}
	c.out = s.bc.Subscribe(p.ID, s.cfg.QueueDepth, func() {
		c.beginClose("outbound queue overflow")
	})

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.beginClose("server shutdown")
		case <-c.done:
		}
	}()

	// Identity, clock, and greeting to the newcomer.
	s.bc.Send(c.id, protocol.EncodeYou(p.ID, p.X, p.Y, p.Z, p.RX, p.RY))
	s.bc.Send(c.id, protocol.EncodeTime(time.Now().Unix(), s.cfg.DayLength))
	s.bc.Send(c.id, protocol.EncodeTalk(s.cfg.MOTD))

	// Announce to others, then introduce every existing player.
	s.bc.Publish(protocol.EncodeTalk(p.Name+" joined the game"), c.id, true)
	s.bc.Publish(protocol.EncodeNick(p.ID, p.Name), c.id, true)
	for _, other := range s.reg.List() {
		if other.ID == c.id {
			continue
		}
		s.bc.Send(c.id, protocol.EncodePosition(other.ID, other.X, other.Y, other.Z, other.RX, other.RY))
		s.bc.Send(c.id, protocol.EncodeNick(other.ID, other.Name))
	}

	s.events.Record(eventlog.Entry{Session: c.session, Player: p.ID, Nick: p.Name, Kind: eventlog.KindJoin})
	s.log.Printf("player %d (%s) connected from %s", p.ID, p.Name, c.nc.RemoteAddr())

	c.state.Store(stateActive)
	c.readLoop()
}

func (c *conn) readLoop() {
	s := c.srv
	dec := protocol.NewDecoder(c.nc)
	for c.state.Load() == stateActive {
		_ = c.nc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		rec, err := dec.Next()
		if err != nil {
			var perr *protocol.ProtocolError
			switch {
			case errors.As(err, &perr):
				s.metrics.ProtocolErrors.Add(1)
				s.log.Printf("player %d: %v", c.id, perr)
				c.beginClose("protocol error")
			case isTimeout(err):
				c.beginClose("idle timeout")
			default:
				fault := &ConnectionFault{Session: c.session, Err: err}
				c.beginClose(fault.Error())
			}
			return
		}
		s.metrics.RecordsTotal.Add(1)
		if !c.dispatch(rec) {
			return
		}
	}
}

// dispatch applies one decoded record; it reports false once the
// connection is closing.
func (c *conn) dispatch(rec protocol.Record) bool {
	switch rec := rec.(type) {
	case protocol.Version:
		if rec.Proto != protocol.ProtoVersion {
			c.srv.log.Printf("player %d: unsupported protocol %d", c.id, rec.Proto)
			c.beginClose("version mismatch")
			return false
		}
	case protocol.Authenticate:
		c.handleAuth(rec)
	case protocol.Nick:
		c.handleNick(rec.Name)
	case protocol.Position:
		c.handlePosition(rec)
	case protocol.Talk:
		c.handleTalk(rec.Text)
	case protocol.BlockEdit:
		c.handleBlock(rec)
	case protocol.ChunkRequest:
		c.handleChunk(rec)
	case protocol.Disconnect:
		c.beginClose("client disconnect")
		return false
	}
	return true
}

// handleAuth takes the claimed username as the display name when the
// player still carries a default one. Token validation belongs to an
// external identity service; the record is logged either way.
func (c *conn) handleAuth(rec protocol.Authenticate) {
	s := c.srv
	p, ok := s.reg.Get(c.id)
	if !ok {
		return
	}
	s.log.Printf("player %d: authenticate as %q", c.id, rec.Username)
	if rec.Username == "" || p.Name != fmt.Sprintf("guest%d", c.id) {
		return
	}
	if _, err := s.reg.Rename(c.id, rec.Username); err != nil {
		return
	}
	s.bc.Publish(protocol.EncodeNick(c.id, rec.Username), c.id, false)
}

func (c *conn) handleNick(name string) {
	s := c.srv
	old, err := s.reg.Rename(c.id, name)
	if err != nil {
		s.log.Printf("player %d: stale rename: %v", c.id, err)
		return
	}
	s.bc.Publish(protocol.EncodeNick(c.id, name), c.id, false)
	s.bc.Publish(protocol.EncodeTalk(old+" is now known as "+name), c.id, false)
	s.events.Record(eventlog.Entry{Session: c.session, Player: c.id, Nick: name, Kind: eventlog.KindNick, Text: old})
}

func (c *conn) handlePosition(rec protocol.Position) {
	s := c.srv
	p, err := s.reg.UpdateTransform(c.id, rec.X, rec.Y, rec.Z, rec.RX, rec.RY)
	if err != nil {
		// A late message from a connection already torn down; ignore.
		s.log.Printf("player %d: stale transform: %v", c.id, err)
		return
	}
	s.bc.Publish(protocol.EncodePosition(p.ID, p.X, p.Y, p.Z, p.RX, p.RY), c.id, true)
}

func (c *conn) handleBlock(rec protocol.BlockEdit) {
	s := c.srv
	p, q, err := s.world.SetBlock(rec.X, rec.Y, rec.Z, rec.W)
	var oor *world.OutOfRangeError
	if errors.As(err, &oor) {
		// Reject the edit but keep the connection; the origin gets the
		// authoritative current value back so its local view converges.
		s.metrics.EditsRejected.Add(1)
		k := world.ChunkKeyFor(rec.X, rec.Z)
		s.bc.Send(c.id, protocol.EncodeBlock(k.P, k.Q, rec.X, rec.Y, rec.Z, s.world.GetBlock(rec.X, rec.Y, rec.Z)))
		return
	}
	s.metrics.BlocksSet.Add(1)
	// Everyone, origin included, sees the server-computed owning chunk.
	s.bc.Publish(protocol.EncodeBlock(p, q, rec.X, rec.Y, rec.Z, rec.W), c.id, false)

	nick := ""
	if pl, ok := s.reg.Get(c.id); ok {
		nick = pl.Name
	}
	block := [4]int{rec.X, rec.Y, rec.Z, int(rec.W)}
	s.events.Record(eventlog.Entry{Session: c.session, Player: c.id, Nick: nick, Kind: eventlog.KindBlock, Block: &block})
}

// handleChunk answers with one burst: every stored block, the cache key,
// then a redraw hint. A request whose key is already current yields
// nothing.
func (c *conn) handleChunk(rec protocol.ChunkRequest) {
	snap := c.srv.world.SnapshotChunk(rec.P, rec.Q)
	if rec.Key >= snap.Revision {
		return
	}
	var buf bytes.Buffer
	for i := 0; i < snap.Len(); i++ {
		x, y, z, w := snap.At(i)
		buf.Write(protocol.EncodeBlock(snap.P, snap.Q, x, y, z, w))
	}
	buf.Write(protocol.EncodeKey(snap.P, snap.Q, snap.Revision))
	buf.Write(protocol.EncodeRedraw(snap.P, snap.Q))
	c.srv.bc.Send(c.id, buf.Bytes())
}

func (c *conn) writeLoop() {
	s := c.srv
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if _, err := c.nc.Write(b); err != nil {
				c.beginClose((&ConnectionFault{Session: c.session, Err: err}).Error())
				return
			}
		}
	}
}

// beginClose performs the CLOSING transition exactly once: unsubscribe,
// notify the others, unregister, close the socket. The player-left notice
// goes out before the id is freed, so the id cannot be reassigned until
// every remaining client has the notice queued.
func (c *conn) beginClose(reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosing)
		s := c.srv

		s.bc.Unsubscribe(c.id)
		p, registered := s.reg.Get(c.id)
		if registered {
			s.bc.Publish(protocol.EncodeDisconnect(c.id), c.id, true)
			s.bc.Publish(protocol.EncodeTalk(p.Name+" left the game"), c.id, true)
		}
		if _, err := s.reg.Unregister(c.id); err != nil && registered {
			s.log.Printf("player %d: unregister: %v", c.id, err)
		}
		if registered {
			pos := [5]float64{p.X, p.Y, p.Z, p.RX, p.RY}
			s.events.Record(eventlog.Entry{Session: c.session, Player: c.id, Nick: p.Name, Kind: eventlog.KindLeave, Pos: &pos})
		}

		_ = c.nc.Close()
		close(c.done)
		c.state.Store(stateClosed)
		s.log.Printf("player %d closed: %s", c.id, reason)
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
