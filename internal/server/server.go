// Package server accepts client sockets and runs one connection handler
// per client against the shared world, player registry, and broadcaster.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"craftwell.io/internal/persistence/eventlog"
	"craftwell.io/internal/player"
	"craftwell.io/internal/world"
)

// Spawn is the transform assigned to every new player.
type Spawn struct {
	X, Y, Z float64
	RX, RY  float64
}

type Config struct {
	Addr      string
	MOTD      string
	DayLength int
	Spawn     Spawn

	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	QueueDepth   int

	// Chat flood control; zero rate disables the limiter.
	ChatRate  float64
	ChatBurst int
}

type Server struct {
	cfg     Config
	world   *world.World
	reg     *player.Registry
	bc      *Broadcaster
	events  *eventlog.Logger
	log     *log.Logger
	metrics *Metrics

	ln net.Listener
}

func New(cfg Config, w *world.World, reg *player.Registry, events *eventlog.Logger, logger *log.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":4080"
	}
	if cfg.MOTD == "" {
		cfg.MOTD = "Welcome to Craft!"
	}
	if cfg.DayLength <= 0 {
		cfg.DayLength = 600
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Metrics{}
	return &Server{
		cfg:     cfg,
		world:   w,
		reg:     reg,
		bc:      NewBroadcaster(m),
		events:  events,
		log:     logger,
		metrics: m,
	}
}

// Listen binds the TCP endpoint. Failure to bind is the caller's fatal
// error; nothing else in the server is.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Players returns the number of registered players.
func (s *Server) Players() int { return s.reg.Count() }

// Serve accepts connections until ctx is cancelled, spawning one handler
// goroutine per client. It returns after the listener closes; handlers
// wind down cooperatively via ctx.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	s.log.Printf("listening on %s", s.ln.Addr())
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.HandleConn(ctx, nc)
	}
}

// HandleConn runs one connection to completion. It is also the entry point
// for the WebSocket bridge, whose adapted sockets behave like TCP ones.
func (s *Server) HandleConn(ctx context.Context, nc net.Conn) {
	s.metrics.ConnectionsTotal.Add(1)
	s.metrics.ConnectionsActive.Add(1)
	defer s.metrics.ConnectionsActive.Add(-1)
	newConn(s, nc).run(ctx)
}
