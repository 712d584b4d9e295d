package ws

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"craftwell.io/internal/player"
	"craftwell.io/internal/server"
	"craftwell.io/internal/world"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBridgeRestoresNewlines(t *testing.T) {
	handle := func(nc net.Conn) {
		defer nc.Close()
		br := bufio.NewReader(nc)
		for i := 0; i < 2; i++ {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if _, err := nc.Write([]byte("echo," + line)); err != nil {
				return
			}
		}
	}
	ts := httptest.NewServer(NewServer(handle, log.New(io.Discard, "", 0)).Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	// One message without the terminator, one with.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("T,hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("P,1,2,3,4,5\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "echo,T,hi\n" {
		t.Fatalf("first echo = %q", msg)
	}
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "echo,P,1,2,3,4,5\n" {
		t.Fatalf("second echo = %q", msg)
	}
}

func TestBridgeServesGameHandshake(t *testing.T) {
	w := world.New(world.Options{Gen: world.Generator{Seed: 1}})
	srv := server.New(server.Config{MOTD: "hello"}, w, player.NewRegistry(), nil, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle := func(nc net.Conn) { srv.HandleConn(ctx, nc) }
	ts := httptest.NewServer(NewServer(handle, log.New(io.Discard, "", 0)).Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var lines []string
	for len(lines) < 3 {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, l := range strings.Split(strings.TrimSuffix(string(msg), "\n"), "\n") {
			lines = append(lines, l)
		}
	}
	if !strings.HasPrefix(lines[0], "U,1,") {
		t.Fatalf("first record = %q, want U", lines[0])
	}
	if !strings.HasPrefix(lines[1], "E,") {
		t.Fatalf("second record = %q, want E", lines[1])
	}
	if lines[2] != "T,hello" {
		t.Fatalf("greeting = %q", lines[2])
	}

	// A chat record round-trips through the shared handler.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("T,from the browser")); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.TrimSuffix(string(msg), "\n") == "T,guest1> from the browser" {
			return
		}
	}
}
