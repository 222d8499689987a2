package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"use [bridge]", "Set or clear the current bridge"},
	{"ports [prefix]", "List port names of the current bridge"},
	{"bridge list", "List all bridges"},
	{"bridge show [bridge]", "Show a bridge and its ports"},
	{"bridge set [bridge] [flags]", "Change priority, timers, version, hold count"},
	{"port show [bridge] <port>", "Show port machines, timers and counters"},
	{"port set [bridge] <port> [flags]", "Change priority, edge, p2p, non-stp"},
	{"port mcheck [bridge] <port>", "Retry RSTP on a port"},
	{"monitor [--current]", "Stream bridge events"},
	{"version [--daemon]", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

var errNoCurrentBridge = errors.New("no current bridge, run 'use <bridge>' first")

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive gorstpctl shell",
		Long: "Launches a REPL that accepts gorstpctl subcommands. 'use <bridge>' selects a bridge " +
			"that bridge and port commands default to. Type 'help', 'exit', or 'quit'.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sh := &shell{
				in:     os.Stdin,
				out:    os.Stdout,
				errOut: os.Stderr,
				api:    client,
				exec: func(args []string) error {
					rootCmd.SetArgs(args)
					return rootCmd.Execute()
				},
			}
			return sh.run(cmd.Context())
		},
	}
}

// shell is the interactive session state.
type shell struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	api    *apiClient

	// exec runs one gorstpctl command line.
	exec func(args []string) error

	// bridge is the current bridge set by "use".
	bridge string
}

func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "GoRSTP interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Fprintln(s.out)

	scanner := bufio.NewScanner(s.in)
	fmt.Fprint(s.out, s.prompt())

	for scanner.Scan() {
		if s.handle(ctx, strings.Fields(scanner.Text())) {
			return nil
		}
		fmt.Fprint(s.out, s.prompt())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	return nil
}

func (s *shell) prompt() string {
	if s.bridge == "" {
		return "gorstpctl> "
	}
	return "gorstpctl(" + s.bridge + ")> "
}

// handle runs one input line and reports whether the session ends.
func (s *shell) handle(ctx context.Context, fields []string) bool {
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "exit", "quit":
		return true
	case "help", "?":
		s.printHelp()
	case "use":
		err = s.use(ctx, fields[1:])
	case "ports":
		err = s.ports(ctx, fields[1:])
	default:
		err = s.exec(expandShellArgs(s.bridge, fields))
	}

	if err != nil {
		fmt.Fprintln(s.errOut, "Error:", err)
	}
	return false
}

func (s *shell) use(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		s.bridge = ""
		fmt.Fprintln(s.out, "No current bridge.")
		return nil
	case 1:
	default:
		return errors.New("usage: use [bridge]")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if _, err := s.api.bridge(ctx, args[0]); err != nil {
		return fmt.Errorf("use %s: %w", args[0], err)
	}
	s.bridge = args[0]
	fmt.Fprintf(s.out, "Using bridge %s.\n", s.bridge)

	return nil
}

func (s *shell) ports(ctx context.Context, args []string) error {
	if s.bridge == "" {
		return errNoCurrentBridge
	}
	if len(args) > 1 {
		return errors.New("usage: ports [prefix]")
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	names, err := portNames(ctx, s.api, s.bridge, prefix)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, strings.Join(names, " "))

	return nil
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out)

	for _, cmd := range shellCommands {
		fmt.Fprintf(s.out, "  %-34s %s\n", cmd.name, cmd.desc)
	}

	fmt.Fprintln(s.out)
}

// expandShellArgs inserts the current bridge into bridge and port
// commands that omit it. A port command names its bridge when it has two
// positional arguments before any flag.
func expandShellArgs(current string, fields []string) []string {
	if current == "" || len(fields) < 2 {
		return fields
	}

	positional := 0
	for _, f := range fields[2:] {
		if strings.HasPrefix(f, "-") {
			break
		}
		positional++
	}

	var missing bool
	switch fields[0] + " " + fields[1] {
	case "bridge show", "bridge set":
		missing = positional == 0
	case "port show", "port set", "port mcheck":
		missing = positional == 1
	}
	if !missing {
		return fields
	}

	out := make([]string, 0, len(fields)+1)
	out = append(out, fields[:2]...)
	out = append(out, current)
	return append(out, fields[2:]...)
}
