package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned for verbs or argument shapes the
// protocol does not define.
var ErrUnknownCommand = errors.New("unknown command")

// Verbs accepted on the control channel.
const (
	VerbGet  = "get"
	VerbPut  = "put"
	VerbList = "ls"
	VerbHelp = "help"
	VerbQuit = "quit"
)

// Command is one parsed control-channel request.
type Command struct {
	Verb string
	Arg  string // filename for get/put, empty otherwise
}

// ParseCommand parses a control frame payload: a whitespace-separated
// verb plus optional single argument. Verbs are case-insensitive.
func ParseCommand(payload []byte) (Command, error) {
	tokens := strings.Fields(string(payload))
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}

	verb := strings.ToLower(tokens[0])
	switch verb {
	case VerbGet, VerbPut:
		if len(tokens) != 2 {
			return Command{}, fmt.Errorf("%w: %s requires exactly one file name", ErrUnknownCommand, verb)
		}
		return Command{Verb: verb, Arg: tokens[1]}, nil
	case VerbList, VerbHelp, VerbQuit:
		if len(tokens) != 1 {
			return Command{}, fmt.Errorf("%w: %s takes no argument", ErrUnknownCommand, verb)
		}
		return Command{Verb: verb}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, tokens[0])
	}
}

// HelpText is the static response to the help command.
const HelpText = `Supported commands:
	get <file name> - download <file name> from the server
	put <file name> - upload <file name> to the server
	ls - list files on the server
	help - print this text
	quit - disconnect`
