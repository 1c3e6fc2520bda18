package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/stats"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/storage"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/transfer"
)

// WorkerModeFlag is the hidden CLI flag that signals a child process
// should run one session on an inherited connection.
const WorkerModeFlag = "--worker-mode"

// Worker environment. The connection fd is always 3, the first
// ExtraFiles slot.
const (
	workerFDEnv      = "MINIFTP_WORKER_FD"
	workerRootEnv    = "MINIFTP_WORKER_ROOT"
	workerTimeoutEnv = "MINIFTP_WORKER_DATA_TIMEOUT"
	workerBWEnv      = "MINIFTP_WORKER_BWLIMIT"
	workerVerifyEnv  = "MINIFTP_WORKER_VERIFY"
	workerHostEnv    = "MINIFTP_WORKER_DATA_HOST"
)

// forkConn re-execs the current binary to serve conn in an isolated
// child process. The accepted socket is passed via ExtraFiles (fd 3);
// the parent closes its copy and does not wait synchronously.
func (s *Server) forkConn(conn net.Conn) error {
	defer conn.Close()

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("cannot pass %T to a worker process", conn)
	}

	connFile, err := tcp.File()
	if err != nil {
		return fmt.Errorf("get connection file: %w", err)
	}
	defer connFile.Close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(executable, WorkerModeFlag)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{connFile} // fd 3 in child
	cmd.Env = append(os.Environ(),
		workerFDEnv+"=3",
		workerRootEnv+"="+s.cfg.Root,
		workerTimeoutEnv+"="+s.cfg.Session.AcceptTimeout.String(),
		workerBWEnv+"="+strconv.FormatInt(workerBWLimit(s.cfg), 10),
		workerVerifyEnv+"="+strconv.FormatBool(s.cfg.Session.Verify),
		workerHostEnv+"="+s.cfg.Session.DataHost,
	)

	cmd.SysProcAttr = &syscall.SysProcAttr{}
	setPdeathsig(cmd.SysProcAttr)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	slog.Info("forked session worker", "pid", cmd.Process.Pid, "remote", conn.RemoteAddr())

	// Reap asynchronously; the parent loops back to accept immediately.
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("worker exited", "pid", cmd.Process.Pid, "error", err)
		}
	}()

	return nil
}

// workerBWLimit recovers the configured bytes/sec from the shared
// limiter so it can be re-created in the child. A child gets its own
// limiter: with no shared memory the cap is per-process, which is the
// documented trade-off of forked mode.
func workerBWLimit(cfg Config) int64 {
	if cfg.Session.Limiter == nil {
		return 0
	}
	return int64(cfg.Session.Limiter.Limit())
}

// RunWorker is the entry point for a forked child. It recovers the
// accepted connection from the inherited fd and serves exactly one
// session.
func RunWorker(ctx context.Context) error {
	fdStr := os.Getenv(workerFDEnv)
	root := os.Getenv(workerRootEnv)
	if fdStr == "" || root == "" {
		return fmt.Errorf("worker mode requires %s and %s env vars", workerFDEnv, workerRootEnv)
	}

	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("invalid fd %q: %w", fdStr, err)
	}

	connFile := os.NewFile(uintptr(fd), "miniftp-conn")
	if connFile == nil {
		return fmt.Errorf("invalid file descriptor %d", fd)
	}

	conn, err := net.FileConn(connFile)
	if err != nil {
		connFile.Close()
		return fmt.Errorf("recover connection from fd %d: %w", fd, err)
	}
	connFile.Close() // FileConn dups the fd; close our copy

	store, err := storage.NewDir(root)
	if err != nil {
		conn.Close()
		return err
	}

	cfg := session.Config{
		Store:    store,
		Stats:    stats.NewCollector(),
		DataHost: os.Getenv(workerHostEnv),
	}
	if d, parseErr := time.ParseDuration(os.Getenv(workerTimeoutEnv)); parseErr == nil {
		cfg.AcceptTimeout = d
	}
	if bw, parseErr := strconv.ParseInt(os.Getenv(workerBWEnv), 10, 64); parseErr == nil && bw > 0 {
		cfg.Limiter = transfer.NewBWLimiter(bw)
	}
	if v, parseErr := strconv.ParseBool(os.Getenv(workerVerifyEnv)); parseErr == nil {
		cfg.Verify = v
	}

	slog.Info("session worker started", "pid", os.Getpid(), "root", root)

	if err := session.New(conn, cfg).Run(ctx); err != nil {
		return fmt.Errorf("worker session: %w", err)
	}

	slog.Info("session worker exiting", "pid", os.Getpid())
	return nil
}
