package client_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/client"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/server"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/stats"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/storage"
)

// startServer runs a threaded dispatcher and returns its address and
// working directory.
func startServer(t *testing.T) (string, string) {
	t.Helper()

	root := t.TempDir()
	store, err := storage.NewDir(root)
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Mode:       server.ModeThreaded,
		Root:       root,
		Session: session.Config{
			Store:         store,
			Stats:         stats.NewCollector(),
			DataHost:      "127.0.0.1",
			AcceptTimeout: 5 * time.Second,
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv.Addr().String(), root
}

func dial(t *testing.T, addr string, opts client.Options) *client.Client {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	c, err := client.Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSavesFile(t *testing.T) {
	t.Parallel()

	addr, root := startServer(t)
	content := bytes.Repeat([]byte("answer"), 7)
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.txt"), content, 0o644))

	dir := t.TempDir()
	c := dial(t, addr, client.Options{Dir: dir})

	res, err := c.Get(context.Background(), "report.txt")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", res.SavedAs)
	assert.Equal(t, int64(len(content)), res.Bytes)

	got, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestGetCollisionRenamesDownload(t *testing.T) {
	t.Parallel()

	addr, root := startServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.txt"), []byte("server"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte("local"), 0o644))

	c := dial(t, addr, client.Options{Dir: dir})
	res, err := c.Get(context.Background(), "report.txt")
	require.NoError(t, err)
	assert.Equal(t, "report(1).txt", res.SavedAs)

	// The pre-existing local file is untouched.
	got, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(got))
}

func TestGetMissingFileIsServerError(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)
	c := dial(t, addr, client.Options{})

	_, err := c.Get(context.Background(), "missing.txt")
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)

	// The control channel is still usable.
	listing, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, listing)
}

func TestPutRoundTrip(t *testing.T) {
	t.Parallel()

	addr, root := startServer(t)
	dir := t.TempDir()
	content := bytes.Repeat([]byte("up"), 50_000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload.bin"), content, 0o644))

	c := dial(t, addr, client.Options{Dir: dir, Verify: true})
	res, err := c.Put(context.Background(), "upload.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), res.Bytes)
	assert.Len(t, res.Digest, 64)

	require.Eventually(t, func() bool {
		got, readErr := os.ReadFile(filepath.Join(root, "upload.bin"))
		return readErr == nil && bytes.Equal(got, content)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPutMissingLocalFileLeavesServerUnchanged(t *testing.T) {
	t.Parallel()

	addr, root := startServer(t)
	c := dial(t, addr, client.Options{})

	_, err := c.Put(context.Background(), "ghost.bin")
	require.Error(t, err)

	// No data channel was opened and no frame was sent: the server
	// directory stays empty and the session stays in sync.
	listing, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, listing)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHelpAndQuit(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)
	c := dial(t, addr, client.Options{})

	help, err := c.Help()
	require.NoError(t, err)
	assert.Contains(t, help, "get <file name>")

	require.NoError(t, c.Quit())
}

func TestExecuteUnknownCommandPrintsHelp(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)
	c := dial(t, addr, client.Options{})

	var out bytes.Buffer
	quit, err := c.Execute(context.Background(), &out, "frobnicate everything")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "invalid input")
	assert.Contains(t, out.String(), "lls - list files in the local directory")
}

func TestExecuteLls(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.txt"), []byte("x"), 0o644))

	c := dial(t, addr, client.Options{Dir: dir})

	var out bytes.Buffer
	quit, err := c.Execute(context.Background(), &out, "lls")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "local.txt\n", out.String())
}

func TestExecuteQuit(t *testing.T) {
	t.Parallel()

	addr, _ := startServer(t)
	c := dial(t, addr, client.Options{})

	var out bytes.Buffer
	quit, err := c.Execute(context.Background(), &out, "quit")
	require.NoError(t, err)
	assert.True(t, quit)
}
