// Package transfer streams one file's bytes across an established data
// connection as a single frame, in either direction.
package transfer

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/wire"
)

// Options tunes one transfer.
type Options struct {
	// Limiter, when non-nil, caps throughput. The limiter may be shared
	// across concurrent transfers to enforce an aggregate cap.
	Limiter *rate.Limiter

	// SpaceCheck, when non-nil, is called with the declared payload size
	// before any payload bytes are consumed on receive. A non-nil return
	// aborts the transfer.
	SpaceCheck func(declared int64) error
}

// NewBWLimiter creates a rate.Limiter capping aggregate throughput to
// bytesPerSec. The burst is 1 MB so natural chunk-sized reads pass
// without blocking on every small read.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedReader throttles reads through a shared limiter.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

// Send writes exactly size bytes from src to conn as one frame.
// Returns the number of payload bytes put on the wire. Fails with
// wire.ErrPayloadTooLarge if size exceeds the frame maximum, and with a
// short-payload error if src runs dry early (e.g. the file shrank after
// its size was captured).
func (o Options) Send(ctx context.Context, conn io.Writer, src io.Reader, size int64) (int64, error) {
	if o.Limiter != nil {
		src = &rateLimitedReader{r: src, limiter: o.Limiter, ctx: ctx}
	}

	n, err := wire.WriteFrameFrom(conn, src, size)
	if err != nil {
		return n, fmt.Errorf("send file: %w", err)
	}
	return n, nil
}

// Receive reads one frame from conn, streaming its payload to dst
// incrementally. Returns the number of payload bytes written. Fails
// with wire.ErrConnClosed if the sender disappears mid-transfer; dst
// may then hold a partial payload and the caller decides its fate.
func (o Options) Receive(ctx context.Context, conn io.Reader, dst io.Writer) (int64, error) {
	if o.Limiter != nil {
		conn = &rateLimitedReader{r: conn, limiter: o.Limiter, ctx: ctx}
	}

	n, err := wire.ReadFrameTo(conn, dst, o.SpaceCheck)
	if err != nil {
		return n, fmt.Errorf("receive file: %w", err)
	}
	return n, nil
}
