// Package ws bridges browser clients onto the line protocol. Each WebSocket
// is wrapped in a net.Conn adapter and handed to the same connection handler
// that serves raw TCP sockets: text messages carry record lines inbound,
// and every outbound write becomes one text message.
package ws

import (
	"bytes"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Server struct {
	handle func(net.Conn)
	log    *log.Logger

	upgrader websocket.Upgrader
}

// NewServer wires upgraded sockets into handle, which runs to completion
// for each client.
func NewServer(handle func(net.Conn), logger *log.Logger) *Server {
	return &Server{
		handle: handle,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		s.log.Printf("websocket client %s", conn.RemoteAddr())
		s.handle(&wsConn{ws: conn})
	}
}

// wsConn adapts a websocket.Conn to net.Conn. Inbound messages are framed
// records; a missing trailing newline is restored so the line decoder sees
// the same stream a TCP client would produce.
type wsConn struct {
	ws  *websocket.Conn
	buf bytes.Buffer
}

func (c *wsConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.buf.Write(msg)
		if len(msg) > 0 && msg[len(msg)-1] != '\n' {
			c.buf.WriteByte('\n')
		}
	}
	return c.buf.Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error { return c.ws.Close() }

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
