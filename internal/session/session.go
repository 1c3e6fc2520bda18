// Package session implements the server side of one control channel:
// the command loop that parses framed requests, negotiates data
// channels, and drives transfers until the client disconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/negotiate"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/stats"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/storage"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/transfer"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/wire"
)

// Config carries the collaborators and knobs shared by all sessions.
type Config struct {
	Store *storage.Dir
	Stats *stats.Collector

	// DataHost is the interface data-channel offers bind to. Empty
	// binds all interfaces, matching the control listener default.
	DataHost string

	// AcceptTimeout bounds the wait for each data connection. Zero
	// selects negotiate.DefaultAcceptTimeout.
	AcceptTimeout time.Duration

	// Limiter, when non-nil, caps aggregate transfer throughput across
	// all sessions sharing it.
	Limiter *rate.Limiter

	// Verify enables BLAKE3 digest logging of stored uploads.
	Verify bool
}

// Session serves one accepted control connection. The zero value is
// not usable; construct with New.
type Session struct {
	conn      net.Conn
	cfg       Config
	log       *slog.Logger
	transfers sync.WaitGroup
}

// New creates a Session bound to conn. The session owns the connection
// and closes it when Run returns.
func New(conn net.Conn, cfg Config) *Session {
	return &Session{
		conn: conn,
		cfg:  cfg,
		log:  slog.With("remote", conn.RemoteAddr().String()),
	}
}

// Run executes the command loop until the client quits, the connection
// drops, or ctx is cancelled. Recoverable command failures are reported
// to the client in-band and the loop continues; framing violations end
// the session. In-flight data transfers are drained before return.
func (s *Session) Run(ctx context.Context) error {
	s.cfg.Stats.AddSessionOpened()
	defer s.cfg.Stats.AddSessionClosed()
	defer s.transfers.Wait()
	defer s.conn.Close()

	// Unblock the control read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.log.Info("session opened")

	for {
		payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, wire.ErrConnClosed) || ctx.Err() != nil {
				s.log.Info("session closed", "reason", "disconnect")
				return nil
			}
			s.log.Warn("session aborted", "error", err)
			return err
		}

		cmd, err := ParseCommand(payload)
		if err != nil {
			s.cfg.Stats.AddCommandRejected()
			s.log.Info("rejected command", "input", string(payload))
			if werr := s.respondError(err); werr != nil {
				return werr
			}
			continue
		}

		s.cfg.Stats.AddCommandHandled()
		s.log.Debug("execute", "verb", cmd.Verb, "arg", cmd.Arg)

		switch cmd.Verb {
		case VerbQuit:
			s.log.Info("session closed", "reason", "quit")
			return nil
		case VerbList:
			err = s.handleList()
		case VerbHelp:
			err = s.respond([]byte(HelpText))
		case VerbGet:
			err = s.handleGet(ctx, cmd.Arg)
		case VerbPut:
			err = s.handlePut(ctx, cmd.Arg)
		}
		if err != nil {
			s.log.Warn("session aborted", "error", err)
			return err
		}
	}
}

// respond writes one response frame on the control channel.
func (s *Session) respond(payload []byte) error {
	if err := wire.WriteFrame(s.conn, payload); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// respondError reports a recoverable command failure in-band. The
// "error: " prefix guarantees the payload never parses as a port
// number, which is how clients tell offers and failures apart.
func (s *Session) respondError(err error) error {
	return s.respond([]byte("error: " + err.Error()))
}

func (s *Session) handleList() error {
	names, err := s.cfg.Store.List()
	if err != nil {
		s.log.Warn("ls failed", "error", err)
		return s.respondError(err)
	}
	return s.respond([]byte(strings.Join(names, "\n")))
}

// handleGet offers a data port and responds with it, then sends the
// file from a transfer goroutine so the control loop stays free for the
// next command. The file's size is captured at offer time; a file that
// shrinks mid-send fails the transfer rather than framing short.
func (s *Session) handleGet(ctx context.Context, name string) error {
	f, size, err := s.cfg.Store.Open(name)
	if err != nil {
		s.log.Info("get refused", "file", name, "error", err)
		return s.respondError(err)
	}
	if size > wire.MaxPayloadSize {
		f.Close()
		s.log.Info("get refused", "file", name, "size", size)
		return s.respondError(fmt.Errorf("%s: %w", name, wire.ErrPayloadTooLarge))
	}

	offer, err := negotiate.NewOffer(s.cfg.DataHost)
	if err != nil {
		f.Close()
		return s.respondError(err)
	}

	if err := s.respond(offer.PortPayload()); err != nil {
		offer.Close()
		f.Close()
		return err
	}
	s.log.Debug("data port offered", "port", offer.Port(), "file", name, "size", size)

	s.transfers.Add(1)
	go func() {
		defer s.transfers.Done()
		defer f.Close()

		conn, err := offer.Accept(s.cfg.AcceptTimeout)
		if err != nil {
			s.cfg.Stats.AddTransferFailed()
			s.log.Warn("get abandoned", "file", name, "error", err)
			return
		}
		defer conn.Close()

		opts := transfer.Options{Limiter: s.cfg.Limiter}
		n, err := opts.Send(ctx, conn, f, size)
		if err != nil {
			s.cfg.Stats.AddTransferFailed()
			s.log.Warn("get failed", "file", name, "sent", n, "error", err)
			return
		}
		s.cfg.Stats.AddFileSent(n)
		s.log.Info("sent file", "file", name, "bytes", n)
	}()
	return nil
}

// handlePut offers a data port with no server-side precondition, then
// receives into an atomic pending file: the target is replaced only
// after the full payload arrived.
func (s *Session) handlePut(ctx context.Context, name string) error {
	// Reject bad names before offering a port; storage would refuse
	// them anyway, but only after the handshake.
	if _, err := s.cfg.Store.Abs(name); err != nil {
		s.log.Info("put refused", "file", name, "error", err)
		return s.respondError(err)
	}

	offer, err := negotiate.NewOffer(s.cfg.DataHost)
	if err != nil {
		return s.respondError(err)
	}

	if err := s.respond(offer.PortPayload()); err != nil {
		offer.Close()
		return err
	}
	s.log.Debug("data port offered", "port", offer.Port(), "file", name)

	s.transfers.Add(1)
	go func() {
		defer s.transfers.Done()

		conn, err := offer.Accept(s.cfg.AcceptTimeout)
		if err != nil {
			s.cfg.Stats.AddTransferFailed()
			s.log.Warn("put abandoned", "file", name, "error", err)
			return
		}
		defer conn.Close()

		if err := s.receiveInto(ctx, conn, name); err != nil {
			s.cfg.Stats.AddTransferFailed()
			s.log.Warn("put failed", "file", name, "error", err)
		}
	}()
	return nil
}

func (s *Session) receiveInto(ctx context.Context, conn net.Conn, name string) error {
	pending, err := s.cfg.Store.Create(name)
	if err != nil {
		return err
	}

	opts := transfer.Options{
		Limiter:    s.cfg.Limiter,
		SpaceCheck: s.checkSpace,
	}
	n, err := opts.Receive(ctx, conn, pending)
	if err != nil {
		pending.Abort()
		return err
	}

	if s.cfg.Verify {
		digest, hashErr := transfer.HashFile(pending.TempPath())
		if hashErr != nil {
			s.log.Warn("verify hash failed", "file", name, "error", hashErr)
		} else {
			s.log.Info("stored upload digest", "file", name, "blake3", digest)
		}
	}

	if err := pending.Commit(); err != nil {
		return err
	}
	s.cfg.Stats.AddFileReceived(n)
	s.log.Info("received file", "file", name, "bytes", n)
	return nil
}

// checkSpace refuses a declared payload that cannot fit on the backing
// filesystem. Best-effort: platforms without the query accept anything.
func (s *Session) checkSpace(declared int64) error {
	free, err := s.cfg.Store.FreeSpace()
	if err != nil {
		return nil //nolint:nilerr // unsupported query must not block transfers
	}
	if declared > 0 && uint64(declared) > free {
		return fmt.Errorf("declared size %d exceeds free space %d", declared, free)
	}
	return nil
}
