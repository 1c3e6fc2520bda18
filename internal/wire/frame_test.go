package wire_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "command", payload: []byte("get report.txt")},
		{name: "empty payload", payload: nil},
		{name: "single byte", payload: []byte{0x00}},
		{name: "binary payload", payload: bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1024)},
		{name: "larger than chunk size", payload: bytes.Repeat([]byte("x"), 300*1024)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, wire.WriteFrame(&buf, tt.payload))

			// Header is always exactly 10 bytes wide.
			assert.Equal(t, wire.SizeFieldWidth+len(tt.payload), buf.Len())

			got, err := wire.ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, len(tt.payload), len(got))
			assert.True(t, bytes.Equal(tt.payload, got))
		})
	}
}

func TestFrameHeaderZeroPadded(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, bytes.Repeat([]byte("a"), 42)))
	assert.Equal(t, "0000000042", buf.String()[:wire.SizeFieldWidth])
}

func TestFrameMultipleRoundTrips(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		[]byte("ls"),
		[]byte("get report.txt"),
		[]byte("54321"),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, wire.WriteFrame(&buf, p))
	}

	for _, want := range payloads {
		got, err := wire.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestWriteFrameFromOversizedRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := wire.WriteFrameFrom(&buf, strings.NewReader(""), wire.MaxPayloadSize+1)
	assert.ErrorIs(t, err, wire.ErrPayloadTooLarge)
	assert.Zero(t, buf.Len())
}

func TestReadFrameMalformedLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "letters in header", input: "00000abc00payload"},
		{name: "negative size", input: "-000000001x"},
		{name: "spaces", input: "      1234x"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := wire.ReadFrame(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, wire.ErrMalformedLength)
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	t.Parallel()

	// Declares 100 bytes but the stream ends after 5.
	_, err := wire.ReadFrame(strings.NewReader("0000000100hello"))
	assert.ErrorIs(t, err, wire.ErrConnClosed)

	// Stream ends inside the header itself.
	_, err = wire.ReadFrame(strings.NewReader("00000"))
	assert.ErrorIs(t, err, wire.ErrConnClosed)

	// Empty stream.
	_, err = wire.ReadFrame(strings.NewReader(""))
	assert.ErrorIs(t, err, wire.ErrConnClosed)
}

func TestStreamedRoundTrip(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("stream"), 100_000)

	var buf bytes.Buffer
	n, err := wire.WriteFrameFrom(&buf, bytes.NewReader(src), int64(len(src)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)

	var dst bytes.Buffer
	var declared int64
	n, err = wire.ReadFrameTo(&buf, &dst, func(size int64) error {
		declared = size
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, int64(len(src)), declared)
	assert.True(t, bytes.Equal(src, dst.Bytes()))
}

func TestReadFrameToAcceptHookAborts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte("payload")))

	wantErr := assert.AnError
	var dst bytes.Buffer
	_, err := wire.ReadFrameTo(&buf, &dst, func(int64) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Zero(t, dst.Len())
}

func TestReadFrameToTruncatedPayload(t *testing.T) {
	t.Parallel()

	var dst bytes.Buffer
	n, err := wire.ReadFrameTo(strings.NewReader("0000000100short"), &dst, nil)
	assert.ErrorIs(t, err, wire.ErrConnClosed)
	assert.Equal(t, int64(5), n)
}
