// Package negotiate implements the per-transfer data channel handshake:
// the server binds an ephemeral port, announces it over the control
// channel, and accepts exactly one connection on it.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultAcceptTimeout bounds how long an offered port waits for the
// peer's data connection before the offer is abandoned and the port
// released.
const DefaultAcceptTimeout = 30 * time.Second

// ErrNegotiationTimeout is returned when no data connection arrives on
// an offered port within the accept timeout.
var ErrNegotiationTimeout = errors.New("data connection not established in time")

// Offer is one pending data channel: an ephemeral listening port
// awaiting exactly one connection.
type Offer struct {
	ln *net.TCPListener
}

// NewOffer binds a listening socket on an OS-assigned ephemeral port.
// host selects the interface; an empty host binds all interfaces.
func NewOffer(host string) (*Offer, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("resolve data listen address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind data port: %w", err)
	}
	return &Offer{ln: ln}, nil
}

// Port returns the OS-assigned port number.
func (o *Offer) Port() int {
	return o.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns the listener's address (useful when binding :0).
func (o *Offer) Addr() net.Addr {
	return o.ln.Addr()
}

// PortPayload returns the port number as the decimal string sent in the
// control-channel offer response.
func (o *Offer) PortPayload() []byte {
	return []byte(strconv.Itoa(o.Port()))
}

// Accept waits up to timeout for the single data connection, then
// closes the listening socket regardless of outcome. A timeout of zero
// uses DefaultAcceptTimeout.
func (o *Offer) Accept(timeout time.Duration) (net.Conn, error) {
	defer o.ln.Close()

	if timeout <= 0 {
		timeout = DefaultAcceptTimeout
	}
	if err := o.ln.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set accept deadline: %w", err)
	}

	conn, err := o.ln.Accept()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrNegotiationTimeout
		}
		return nil, fmt.Errorf("accept data connection: %w", err)
	}
	return conn, nil
}

// Close releases the offered port without accepting. Safe to call after
// Accept; Accept already closes the listener.
func (o *Offer) Close() error {
	return o.ln.Close()
}

// Dial is the client-side counterpart: it opens the data connection to
// the host and port the server announced.
func Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial data port %d: %w", port, err)
	}
	return conn, nil
}
