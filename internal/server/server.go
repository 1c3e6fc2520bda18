// Package server accepts control connections on the well-known port
// and assigns each to a session under one of three execution models:
// iterative, threaded, or process-per-connection.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
)

// Mode selects the dispatcher's execution model. Protocol behavior is
// identical across modes; only fault isolation and scalability differ.
type Mode string

const (
	// ModeIterative serves one session to completion before accepting
	// the next connection. No concurrent clients.
	ModeIterative Mode = "iterative"

	// ModeThreaded serves each session in its own goroutine. Sessions
	// share the address space but touch disjoint state; the filesystem
	// is the only shared mutable resource.
	ModeThreaded Mode = "threaded"

	// ModeForked serves each session in a re-exec'd child process that
	// inherits the accepted socket. No shared memory.
	ModeForked Mode = "forked"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIterative, ModeThreaded, ModeForked:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown server mode %q (want iterative, threaded, or forked)", s)
	}
}

// Config configures the dispatcher.
type Config struct {
	ListenAddr string
	Mode       Mode

	// Session carries the per-session collaborators. Its Store must be
	// rooted at Root.
	Session session.Config

	// Root is the served directory path, forwarded to forked workers.
	Root string
}

// Server is the concurrency dispatcher.
type Server struct {
	listener net.Listener
	cfg      Config
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
}

// New binds the control listener. Call Serve to start accepting.
func New(cfg Config) (*Server, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeIterative
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	return &Server{
		listener: listener,
		cfg:      cfg,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listener's address (useful when listening on :0).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Blocks until
// in-flight sessions drain.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("server listening",
		"addr", s.listener.Addr(),
		"mode", s.cfg.Mode,
		"root", s.cfg.Root,
	)

	var wg sync.WaitGroup

	// Shutdown goroutine: stop the listener, then force-close laggards.
	go func() {
		<-ctx.Done()
		s.listener.Close()

		time.AfterFunc(30*time.Second, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for conn := range s.conns {
				conn.Close()
			}
		})
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break // graceful shutdown
			}
			slog.Error("accept error", "error", err)
			continue
		}

		switch s.cfg.Mode {
		case ModeForked:
			if err := s.forkConn(conn); err != nil {
				slog.Error("fork session failed", "remote", conn.RemoteAddr(), "error", err)
				conn.Close()
			}
		case ModeThreaded:
			s.track(conn)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.untrack(conn)
				s.runSession(ctx, conn)
			}()
		default: // iterative
			s.track(conn)
			s.runSession(ctx, conn)
			s.untrack(conn)
		}
	}

	wg.Wait()
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) runSession(ctx context.Context, conn net.Conn) {
	if err := session.New(conn, s.cfg.Session).Run(ctx); err != nil {
		slog.Warn("session ended with error", "remote", conn.RemoteAddr(), "error", err)
	}
}
