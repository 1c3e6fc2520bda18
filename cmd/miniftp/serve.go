package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/config"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/logging"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/server"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/stats"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/storage"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/transfer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a file transfer server",
	Long: `Run a server that accepts control connections and serves get, put,
ls, help, and quit commands over the framed protocol. File content moves
over per-transfer ephemeral data ports.

The --mode flag selects how concurrent clients are served:
  iterative  one session at a time
  threaded   one goroutine per session (default)
  forked     one re-exec'd child process per session, no shared memory`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":2121", "listen address (host:port)")
	serveCmd.Flags().String("root", ".", "directory to serve")
	serveCmd.Flags().String("mode", "threaded", "concurrency mode: iterative, threaded, or forked")
	serveCmd.Flags().String("bwlimit", "", "aggregate transfer bandwidth limit (e.g. 10M)")
	serveCmd.Flags().Duration("data-timeout", 30*time.Second, "how long an offered data port waits for its connection")
	serveCmd.Flags().Bool("verify", false, "log BLAKE3 digests of stored uploads")
	serveCmd.Flags().BoolP("verbose", "v", false, "debug logging")
	serveCmd.Flags().String("log", "", "write structured JSON log to FILE")
}

//nolint:revive // cognitive-complexity: flag parsing + config defaults + wiring
func runServe(cmd *cobra.Command, _ []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")
	root, _ := cmd.Flags().GetString("root")
	modeStr, _ := cmd.Flags().GetString("mode")
	bwLimitStr, _ := cmd.Flags().GetString("bwlimit")
	dataTimeout, _ := cmd.Flags().GetDuration("data-timeout")
	verify, _ := cmd.Flags().GetBool("verify")
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetString("log")

	// Apply config-file defaults for flags not explicitly set.
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	fs := cmd.Flags()
	applyDefault(fs, "listen", &listenAddr, cfg.Defaults.Listen)
	applyDefault(fs, "root", &root, cfg.Defaults.Root)
	applyDefault(fs, "mode", &modeStr, cfg.Defaults.Mode)
	applyDefault(fs, "bwlimit", &bwLimitStr, cfg.Defaults.BWLimit)
	applyDefault(fs, "verify", &verify, cfg.Defaults.Verify)
	if !fs.Changed("data-timeout") && cfg.Defaults.DataTimeout != nil {
		if d, parseErr := time.ParseDuration(*cfg.Defaults.DataTimeout); parseErr == nil {
			dataTimeout = d
		}
	}

	mode, err := server.ParseMode(modeStr)
	if err != nil {
		return err
	}

	if err := configureLogging(verbose, logFile); err != nil {
		return err
	}

	store, err := storage.NewDir(root)
	if err != nil {
		return err
	}

	sessionCfg := session.Config{
		Store:         store,
		Stats:         stats.NewCollector(),
		AcceptTimeout: dataTimeout,
		Verify:        verify,
	}
	if bwLimitStr != "" {
		bw, parseErr := config.ParseSize(bwLimitStr)
		if parseErr != nil {
			return fmt.Errorf("invalid --bwlimit: %w", parseErr)
		}
		sessionCfg.Limiter = transfer.NewBWLimiter(bw)
	}

	srv, err := server.New(server.Config{
		ListenAddr: listenAddr,
		Mode:       mode,
		Root:       root,
		Session:    sessionCfg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Serve(ctx)

	snap := sessionCfg.Stats.Snapshot()
	slog.Info("server stopped",
		"sessions", snap.SessionsOpened,
		"commands", snap.CommandsHandled,
		"files_sent", snap.FilesSent,
		"files_received", snap.FilesReceived,
		"bytes_sent", snap.BytesSent,
		"bytes_received", snap.BytesReceived,
		"transfer_failures", snap.TransfersFailed,
		"uptime", snap.Elapsed.Round(time.Second),
	)
	return err
}

// applyDefault overrides dst with the config-file value when the flag
// was not set on the command line. Explicit flags always win.
func applyDefault[T any](fs *pflag.FlagSet, name string, dst *T, fromFile *T) {
	if !fs.Changed(name) && fromFile != nil {
		*dst = *fromFile
	}
}

// configureLogging installs the default slog logger: console text on
// stderr, plus a JSON file handler when logFile is set.
func configureLogging(verbose bool, logFile string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	var handler slog.Handler = textHandler
	if logFile != "" {
		lf, err := os.Create(logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = logging.NewMultiHandler(textHandler, jsonHandler)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
