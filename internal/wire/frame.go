// Package wire implements the framed message envelope used on every
// control and data connection: a fixed-width ASCII decimal length field
// followed by exactly that many payload bytes.
package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// SizeFieldWidth is the width of the length prefix in bytes. The
	// prefix is the payload length as zero-padded ASCII decimal digits.
	SizeFieldWidth = 10

	// MaxPayloadSize is the largest payload expressible in the length
	// prefix: 10^SizeFieldWidth - 1 bytes.
	MaxPayloadSize int64 = 9_999_999_999

	// chunkSize is the copy buffer size for streamed frame payloads.
	chunkSize = 256 * 1024
)

// Protocol error classes. Callers match with errors.Is.
var (
	// ErrPayloadTooLarge is returned when a payload cannot be expressed
	// in the fixed-width length prefix.
	ErrPayloadTooLarge = errors.New("payload exceeds frame maximum")

	// ErrMalformedLength is returned when a length prefix contains
	// non-digit bytes. The stream is unrecoverable after this.
	ErrMalformedLength = errors.New("malformed frame length")

	// ErrConnClosed is returned when the peer closes the connection
	// before a full frame arrives.
	ErrConnClosed = errors.New("connection closed mid-frame")
)

// appendHeader appends the zero-padded decimal length prefix for n.
func appendHeader(buf []byte, n int64) []byte {
	s := strconv.FormatInt(n, 10)
	for i := len(s); i < SizeFieldWidth; i++ {
		buf = append(buf, '0')
	}
	return append(buf, s...)
}

// WriteFrame writes payload as a single frame to w.
// Header and payload are combined into one Write() call to avoid
// Nagle/delayed-ACK interactions on small control messages.
func WriteFrame(w io.Writer, payload []byte) error {
	if int64(len(payload)) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}

	buf := make([]byte, 0, SizeFieldWidth+len(payload))
	buf = appendHeader(buf, int64(len(payload)))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteFrameFrom writes one frame whose payload is the next size bytes
// of src, streamed in chunks to bound memory use. Returns the number of
// payload bytes written. If src yields fewer than size bytes the frame
// is short on the wire and the connection is no longer usable.
func WriteFrameFrom(w io.Writer, src io.Reader, size int64) (int64, error) {
	if size > MaxPayloadSize {
		return 0, ErrPayloadTooLarge
	}
	if size < 0 {
		return 0, fmt.Errorf("negative payload size %d", size)
	}

	header := appendHeader(make([]byte, 0, SizeFieldWidth), size)
	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write frame header: %w", err)
	}

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(w, io.LimitReader(src, size), buf)
	if err != nil {
		return n, fmt.Errorf("write frame payload: %w", err)
	}
	if n != size {
		return n, fmt.Errorf("short payload: wrote %d of %d declared bytes", n, size)
	}
	return n, nil
}

// readHeader reads and parses the fixed-width length prefix.
func readHeader(r io.Reader) (int64, error) {
	var header [SizeFieldWidth]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrConnClosed
		}
		return 0, fmt.Errorf("read frame header: %w", err)
	}

	var n int64
	for _, c := range header {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedLength, header)
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}

// ReadFrame reads one complete frame from r and returns its payload.
// Blocks until all declared bytes arrive. Not for file-sized payloads;
// use ReadFrameTo for those.
func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnClosed
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// ReadFrameTo reads one frame from r, streaming its payload to dst in
// chunks. The accept hook, when non-nil, is called with the declared
// payload size before any payload bytes are consumed; a non-nil return
// aborts the read. Returns the number of payload bytes written to dst.
func ReadFrameTo(r io.Reader, dst io.Writer, accept func(int64) error) (int64, error) {
	size, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	if accept != nil {
		if err := accept(size); err != nil {
			return 0, err
		}
	}

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(dst, io.LimitReader(r, size), buf)
	if err != nil {
		return n, fmt.Errorf("read frame payload: %w", err)
	}
	if n != size {
		return n, fmt.Errorf("%w: got %d of %d declared bytes", ErrConnClosed, n, size)
	}
	return n, nil
}
