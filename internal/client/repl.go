package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"github.com/mhy001/Simple-FTP-Server-and-Client/internal/session"
)

// replHelp extends the server verbs with the client-only ones.
const replHelp = `Supported commands:
	get <file name> - download <file name> from the server
	put <file name> - upload <file name> to the server
	ls - list files on the server
	lls - list files in the local directory
	help - print this text
	quit - disconnect and exit`

// fdWriter is satisfied by *os.File; the prompt is only printed when
// the input is an interactive terminal.
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

// REPL runs the interactive command loop: read one line, execute it,
// print the result, repeat until quit or EOF.
func (c *Client) REPL(ctx context.Context, in io.Reader, out fdWriter) error {
	interactive := term.IsTerminal(int(out.Fd()))
	scanner := bufio.NewScanner(in)

	for {
		if interactive {
			fmt.Fprint(out, "ftp> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return c.Quit() // EOF behaves like quit
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := c.Execute(ctx, out, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// Execute runs a single command line and prints its outcome. The bool
// result reports whether the session ended. Recoverable failures are
// printed, not returned; a non-nil error means the control channel is
// no longer usable.
func (c *Client) Execute(ctx context.Context, out io.Writer, line string) (bool, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false, nil
	}
	verb := strings.ToLower(tokens[0])

	switch {
	case verb == session.VerbGet && len(tokens) == 2:
		res, err := c.Get(ctx, tokens[1])
		if err != nil {
			fmt.Fprintf(out, "get %s: %v\n", tokens[1], err)
			return false, c.checkUsable(err)
		}
		fmt.Fprintf(out, "retrieved %d bytes for '%s', saved as '%s'\n", res.Bytes, tokens[1], res.SavedAs)
		if res.Digest != "" {
			fmt.Fprintf(out, "blake3 %s\n", res.Digest)
		}

	case verb == session.VerbPut && len(tokens) == 2:
		res, err := c.Put(ctx, tokens[1])
		if err != nil {
			fmt.Fprintf(out, "put %s: %v\n", tokens[1], err)
			return false, c.checkUsable(err)
		}
		fmt.Fprintf(out, "sent %d bytes for '%s'\n", res.Bytes, tokens[1])
		if res.Digest != "" {
			fmt.Fprintf(out, "blake3 %s\n", res.Digest)
		}

	case verb == session.VerbList && len(tokens) == 1:
		listing, err := c.List()
		if err != nil {
			return false, err
		}
		if listing != "" {
			fmt.Fprintln(out, listing)
		}

	case verb == "lls" && len(tokens) == 1:
		names, err := c.ListLocal()
		if err != nil {
			fmt.Fprintf(out, "lls: %v\n", err)
			return false, nil
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}

	case verb == session.VerbQuit:
		return true, c.Quit()

	case verb == session.VerbHelp:
		fmt.Fprintln(out, replHelp)

	default:
		fmt.Fprintf(out, "invalid input: %s\n%s\n", line, replHelp)
	}

	return false, nil
}

// checkUsable decides whether a command failure poisoned the control
// channel. Only control-channel framing failures do; server-reported
// errors, local file errors, and data-channel failures all leave the
// next command able to proceed.
func (c *Client) checkUsable(err error) error {
	var cerr *ControlError
	if errors.As(err, &cerr) {
		return err
	}
	return nil
}
