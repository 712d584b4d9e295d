// Command bot is a headless client for load and smoke testing: it joins
// the server, wanders, places the odd block, and chats.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"craftwell.io/internal/protocol"
	"craftwell.io/internal/world"
)

func main() {
	var (
		addr  = flag.String("addr", "localhost:4080", "server address")
		name  = flag.String("name", "bot", "player name")
		chat  = flag.Bool("chat", true, "chat periodically")
		build = flag.Bool("build", false, "place blocks while wandering")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(format string, args ...any) {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := fmt.Fprintf(conn, format+"\n", args...); err != nil {
			logger.Fatalf("send: %v", err)
		}
	}
	send("V,%d", protocol.ProtoVersion)
	send("A,%s,-", *name)

	// Reader: surface chat so a human can watch the bot's world.
	go func() {
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				logger.Fatalf("read: %v", err)
			}
			line = strings.TrimSuffix(line, "\n")
			if strings.HasPrefix(line, "T,") {
				logger.Printf("%s", line[2:])
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	x, z := 0.0, 0.0
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for n := 0; ; n++ {
		select {
		case <-stop:
			send("D")
			return
		case <-tick.C:
		}

		x += float64(r.Intn(5) - 2)
		z += float64(r.Intn(5) - 2)
		send("P,%g,40,%g,%g,0", x, z, r.Float64()*6.28)

		if *chat && n%30 == 15 {
			send("T,wandering near %.0f,%.0f", x, z)
		}
		if *build && n%10 == 5 {
			bx, bz := int(x), int(z)
			k := world.ChunkKeyFor(bx, bz)
			send("B,%d,%d,%d,40,%d,4", k.P, k.Q, bx, bz)
		}
	}
}
