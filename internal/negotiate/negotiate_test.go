package negotiate_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/negotiate"
)

func TestOfferAcceptDial(t *testing.T) {
	t.Parallel()

	offer, err := negotiate.NewOffer("127.0.0.1")
	require.NoError(t, err)
	require.Positive(t, offer.Port())

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, acceptErr := offer.Accept(5 * time.Second)
		accepted <- result{conn, acceptErr}
	}()

	clientConn, err := negotiate.Dial(context.Background(), "127.0.0.1", offer.Port())
	require.NoError(t, err)
	defer clientConn.Close()

	res := <-accepted
	require.NoError(t, res.err)
	defer res.conn.Close()

	// The channel is usable in both directions.
	_, err = clientConn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = res.conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestAcceptTimeoutReleasesPort(t *testing.T) {
	t.Parallel()

	offer, err := negotiate.NewOffer("127.0.0.1")
	require.NoError(t, err)
	port := offer.Port()

	start := time.Now()
	_, err = offer.Accept(100 * time.Millisecond)
	assert.ErrorIs(t, err, negotiate.ErrNegotiationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The listening socket is closed on timeout, so a dial to the
	// offered port must not hang waiting in a backlog.
	conn, err := net.DialTimeout("tcp", offer.Addr().String(), 500*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatalf("port %d still accepting after timeout", port)
	}
}

func TestOfferSingleConnection(t *testing.T) {
	t.Parallel()

	offer, err := negotiate.NewOffer("127.0.0.1")
	require.NoError(t, err)

	accepted := make(chan error, 1)
	go func() {
		conn, acceptErr := offer.Accept(5 * time.Second)
		if acceptErr == nil {
			conn.Close()
		}
		accepted <- acceptErr
	}()

	first, err := negotiate.Dial(context.Background(), "127.0.0.1", offer.Port())
	require.NoError(t, err)
	first.Close()
	require.NoError(t, <-accepted)

	// No backlog reuse: one offer serves exactly one connection.
	second, err := negotiate.Dial(context.Background(), "127.0.0.1", offer.Port())
	if err == nil {
		// A connect may succeed briefly on some platforms before the
		// close propagates; any read must then fail.
		second.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 1)
		_, readErr := second.Read(buf)
		assert.Error(t, readErr)
		second.Close()
	}
}

func TestDialRefused(t *testing.T) {
	t.Parallel()

	// Bind and immediately close to get a port that refuses connections.
	offer, err := negotiate.NewOffer("127.0.0.1")
	require.NoError(t, err)
	port := offer.Port()
	require.NoError(t, offer.Close())

	_, err = negotiate.Dial(context.Background(), "127.0.0.1", port)
	assert.Error(t, err)
}

func TestPortPayloadIsDecimalString(t *testing.T) {
	t.Parallel()

	offer, err := negotiate.NewOffer("127.0.0.1")
	require.NoError(t, err)
	defer offer.Close()

	assert.Regexp(t, `^\d+$`, string(offer.PortPayload()))
}
