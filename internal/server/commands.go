package server

import (
	"strings"

	"craftwell.io/internal/persistence/eventlog"
	"craftwell.io/internal/protocol"
)

// handleTalk broadcasts chat or, for a leading slash, runs a command whose
// replies go to the origin only. The per-connection limiter applies to T
// records and nothing else.
func (c *conn) handleTalk(text string) {
	s := c.srv
	if !c.limiter.Allow() {
		s.metrics.ChatDropped.Add(1)
		c.reply("Chat rate limit exceeded; message dropped")
		return
	}
	if strings.HasPrefix(text, "/") {
		c.handleCommand(text)
		return
	}
	p, ok := s.reg.Get(c.id)
	if !ok {
		return
	}
	s.bc.Publish(protocol.EncodeTalk(p.Name+"> "+text), c.id, false)
	s.events.Record(eventlog.Entry{Session: c.session, Player: c.id, Nick: p.Name, Kind: eventlog.KindChat, Text: text})
}

func (c *conn) handleCommand(command string) {
	s := c.srv
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return
	}
	cmd := strings.ToLower(parts[0])

	switch {
	case cmd == "/list":
		names := make([]string, 0, 8)
		for _, p := range s.reg.List() {
			names = append(names, p.Name)
		}
		c.reply("Players: " + strings.Join(names, ", "))

	case cmd == "/goto" && len(parts) > 1:
		target, ok := s.reg.Lookup(parts[1])
		if !ok {
			c.reply("Player '" + parts[1] + "' not found")
			return
		}
		c.teleport(target.X, target.Y, target.Z, target.RX, target.RY, "Teleported to "+target.Name)

	case cmd == "/spawn":
		sp := s.cfg.Spawn
		c.teleport(sp.X, sp.Y, sp.Z, sp.RX, sp.RY, "Teleported to spawn")

	default:
		// /goto without an argument lands here too.
		c.reply("Unknown command: " + cmd)
	}
}

// teleport moves the caller and confirms with its own P record; clients
// reposition themselves from it. Others learn the new transform from the
// caller's next position update.
func (c *conn) teleport(x, y, z, rx, ry float64, notice string) {
	s := c.srv
	p, err := s.reg.UpdateTransform(c.id, x, y, z, rx, ry)
	if err != nil {
		return
	}
	s.bc.Send(c.id, protocol.EncodePosition(p.ID, p.X, p.Y, p.Z, p.RX, p.RY))
	c.reply(notice)
}

func (c *conn) reply(text string) {
	c.srv.bc.Send(c.id, protocol.EncodeTalk(text))
}
