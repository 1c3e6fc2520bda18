// Package client implements the user side of the protocol: the control
// channel, per-transfer data connections, and the interactive loop.
package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/negotiate"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/storage"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/transfer"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/wire"
)

// ServerError is a textual error frame returned by the server in place
// of a result. The session survives it.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return e.Msg }

// ControlError marks a failure on the control channel itself. The
// session cannot continue after one; data-channel failures, by
// contrast, leave the control channel in sync.
type ControlError struct {
	Err error
}

func (e *ControlError) Error() string { return e.Err.Error() }
func (e *ControlError) Unwrap() error { return e.Err }

// Options tunes a client.
type Options struct {
	// Dir is the local working directory for downloads, uploads, and
	// lls. Defaults to ".".
	Dir string

	// Limiter, when non-nil, caps transfer throughput.
	Limiter *rate.Limiter

	// Verify computes BLAKE3 digests of transferred files.
	Verify bool

	// DialTimeout bounds control and data connection dials.
	DialTimeout time.Duration
}

// Client owns one control connection to a server.
type Client struct {
	conn  net.Conn
	host  string
	local *storage.Dir
	opts  Options
}

// Dial connects the control channel to addr ("host:port").
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("server address %q: %w", addr, err)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}

	local, err := storage.NewDir(opts.Dir)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	return &Client{conn: conn, host: host, local: local, opts: opts}, nil
}

// Close closes the control connection without sending quit.
func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one command frame and reads the single response frame.
func (c *Client) roundTrip(cmd string) ([]byte, error) {
	if err := wire.WriteFrame(c.conn, []byte(cmd)); err != nil {
		return nil, &ControlError{Err: fmt.Errorf("send %q: %w", cmd, err)}
	}
	resp, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, &ControlError{Err: fmt.Errorf("response to %q: %w", cmd, err)}
	}
	return resp, nil
}

// List returns the server's directory listing, one name per line.
func (c *Client) List() (string, error) {
	resp, err := c.roundTrip(session.VerbList)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// Help returns the server's help text.
func (c *Client) Help() (string, error) {
	resp, err := c.roundTrip(session.VerbHelp)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// Quit tells the server to close the session, then closes the control
// connection. The server sends no response to quit.
func (c *Client) Quit() error {
	if err := wire.WriteFrame(c.conn, []byte(session.VerbQuit)); err != nil {
		c.conn.Close()
		return fmt.Errorf("send quit: %w", err)
	}
	return c.conn.Close()
}

// portFromOffer interprets the server's response to a transfer command:
// a decimal port number on success, error text otherwise.
func portFromOffer(resp []byte) (int, error) {
	port, err := strconv.Atoi(string(resp))
	if err != nil || port <= 0 {
		return 0, &ServerError{Msg: strings.TrimPrefix(string(resp), "error: ")}
	}
	return port, nil
}

// GetResult describes one completed download.
type GetResult struct {
	SavedAs string // local name, collision-renamed if needed
	Bytes   int64
	Digest  string // BLAKE3 hex, when Verify is set
}

// Get downloads name from the server. An existing local file of the
// same name is preserved; the download lands under a collision variant.
func (c *Client) Get(ctx context.Context, name string) (GetResult, error) {
	resp, err := c.roundTrip(session.VerbGet + " " + name)
	if err != nil {
		return GetResult{}, err
	}
	port, err := portFromOffer(resp)
	if err != nil {
		return GetResult{}, err
	}

	dataConn, err := negotiate.Dial(ctx, c.host, port)
	if err != nil {
		return GetResult{}, err
	}
	defer dataConn.Close()

	saveAs, err := c.local.NextUnique(name)
	if err != nil {
		return GetResult{}, err
	}
	pending, err := c.local.Create(saveAs)
	if err != nil {
		return GetResult{}, err
	}

	opts := transfer.Options{Limiter: c.opts.Limiter}
	n, err := opts.Receive(ctx, dataConn, pending)
	if err != nil {
		pending.Abort()
		return GetResult{}, err
	}

	result := GetResult{SavedAs: saveAs, Bytes: n}
	if c.opts.Verify {
		result.Digest, err = transfer.HashFile(pending.TempPath())
		if err != nil {
			pending.Abort()
			return GetResult{}, err
		}
	}

	if err := pending.Commit(); err != nil {
		return GetResult{}, err
	}
	return result, nil
}

// PutResult describes one completed upload.
type PutResult struct {
	Bytes  int64
	Digest string // BLAKE3 hex, when Verify is set
}

// Put uploads the local file name to the server. A missing local file
// fails before any frame is sent, leaving the server untouched.
func (c *Client) Put(ctx context.Context, name string) (PutResult, error) {
	f, size, err := c.local.Open(name)
	if err != nil {
		return PutResult{}, err
	}
	defer f.Close()

	resp, err := c.roundTrip(session.VerbPut + " " + name)
	if err != nil {
		return PutResult{}, err
	}
	port, err := portFromOffer(resp)
	if err != nil {
		return PutResult{}, err
	}

	dataConn, err := negotiate.Dial(ctx, c.host, port)
	if err != nil {
		return PutResult{}, err
	}
	defer dataConn.Close()

	opts := transfer.Options{Limiter: c.opts.Limiter}
	n, err := opts.Send(ctx, dataConn, f, size)
	if err != nil {
		return PutResult{}, err
	}

	result := PutResult{Bytes: n}
	if c.opts.Verify {
		abs, absErr := c.local.Abs(name)
		if absErr == nil {
			result.Digest, _ = transfer.HashFile(abs)
		}
	}
	return result, nil
}

// ListLocal returns the local working directory listing (lls).
func (c *Client) ListLocal() ([]string, error) {
	return c.local.List()
}
