package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/server"
)

var version = "dev"

func main() {
	// Worker mode: re-exec'd child process for fork-per-connection.
	// Must be checked before cobra to avoid flag conflicts.
	if len(os.Args) == 2 && os.Args[1] == server.WorkerModeFlag {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := server.RunWorker(ctx)
		stop()

		if err != nil {
			slog.Error("worker failed", "error", err)
			os.Exit(1)
		}
		return
	}

	rootCmd := &cobra.Command{
		Use:           "miniftp",
		Short:         "Minimal FTP-style file transfer over TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
