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

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/client"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/config"
	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/transfer"
)

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Connect to a file transfer server",
	Long: `Open a control connection to a server and run the interactive loop:

	get <file name> - download <file name> from the server
	put <file name> - upload <file name> to the server
	ls - list files on the server
	lls - list files in the local directory
	help - print the help string
	quit - disconnect and exit

With --cmd, run a single command and exit instead.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConnect,
}

func init() {
	connectCmd.Flags().String("dir", ".", "local working directory")
	connectCmd.Flags().String("bwlimit", "", "transfer bandwidth limit (e.g. 10M)")
	connectCmd.Flags().Bool("verify", false, "print BLAKE3 digests of transferred files")
	connectCmd.Flags().String("cmd", "", "run one command and exit (e.g. \"get report.txt\")")
	connectCmd.Flags().BoolP("verbose", "v", false, "debug logging")
}

func runConnect(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	bwLimitStr, _ := cmd.Flags().GetString("bwlimit")
	verify, _ := cmd.Flags().GetBool("verify")
	oneShot, _ := cmd.Flags().GetString("cmd")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := client.Options{
		Dir:         dir,
		Verify:      verify,
		DialTimeout: 10 * time.Second,
	}
	if bwLimitStr != "" {
		bw, err := config.ParseSize(bwLimitStr)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		opts.Limiter = transfer.NewBWLimiter(bw)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, args[0], opts)
	if err != nil {
		return err
	}

	if oneShot != "" {
		defer c.Close()
		quit, err := c.Execute(ctx, os.Stdout, oneShot)
		if err != nil {
			return err
		}
		if !quit {
			return c.Quit()
		}
		return nil
	}

	return c.REPL(ctx, os.Stdin, os.Stdout)
}
