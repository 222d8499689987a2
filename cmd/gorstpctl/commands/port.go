package commands

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gorstp/internal/server"
)

func portCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Inspect and tune bridge ports",
	}

	cmd.AddCommand(portShowCmd())
	cmd.AddCommand(portSetCmd())
	cmd.AddCommand(portMcheckCmd())

	return cmd
}

// resolvePort turns the port argument of the port subcommands into a port
// number. The argument is a number or the interface name of one of the
// bridge's ports.
func resolvePort(ctx context.Context, c *apiClient, bridge, arg string) (uint16, error) {
	if n, err := strconv.ParseUint(arg, 10, 16); err == nil {
		return uint16(n), nil
	}

	b, err := c.bridge(ctx, bridge)
	if err != nil {
		return 0, fmt.Errorf("get bridge: %w", err)
	}
	for _, p := range b.Ports {
		if p.Name == arg {
			return p.Number, nil
		}
	}
	return 0, fmt.Errorf("bridge %s has no port %q", bridge, arg)
}

// portNames returns the sorted interface names of the bridge's ports that
// start with prefix.
func portNames(ctx context.Context, c *apiClient, bridge, prefix string) ([]string, error) {
	b, err := c.bridge(ctx, bridge)
	if err != nil {
		return nil, fmt.Errorf("get bridge: %w", err)
	}

	var names []string
	for _, p := range b.Ports {
		if strings.HasPrefix(p.Name, prefix) {
			names = append(names, p.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// --- port show ---

func portShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <bridge> <port>",
		Short: "Show the state machines, timers and counters of a port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			number, err := resolvePort(ctx, client, args[0], args[1])
			if err != nil {
				return err
			}

			p, err := client.port(ctx, args[0], number)
			if err != nil {
				return fmt.Errorf("get port: %w", err)
			}

			out, err := formatPort(p, outputFormat)
			if err != nil {
				return fmt.Errorf("format port: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- port set ---

func portSetCmd() *cobra.Command {
	var (
		priority     uint8
		adminEdge    bool
		autoEdge     bool
		pointToPoint string
		nonStp       bool
	)

	cmd := &cobra.Command{
		Use:   "set <bridge> <port>",
		Short: "Change port parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var p server.PortPatch
			if flags.Changed("priority") {
				p.Priority = &priority
			}
			p.AdminEdge = changedBool(flags, "admin-edge", adminEdge)
			p.AutoEdge = changedBool(flags, "auto-edge", autoEdge)
			p.PointToPoint = changedString(flags, "p2p", pointToPoint)
			p.NonStp = changedBool(flags, "non-stp", nonStp)
			if p == (server.PortPatch{}) {
				return errNothingToSet
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			number, err := resolvePort(ctx, client, args[0], args[1])
			if err != nil {
				return err
			}

			updated, err := client.patchPort(ctx, args[0], number, p)
			if err != nil {
				return fmt.Errorf("set port: %w", err)
			}

			out, err := formatPort(updated, outputFormat)
			if err != nil {
				return fmt.Errorf("format port: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint8Var(&priority, "priority", 0, "port priority, a multiple of 16")
	flags.BoolVar(&adminEdge, "admin-edge", false, "treat the port as an edge port")
	flags.BoolVar(&autoEdge, "auto-edge", true, "detect edge ports automatically")
	flags.StringVar(&pointToPoint, "p2p", "", "point-to-point: auto, true or false")
	flags.BoolVar(&nonStp, "non-stp", false, "disable spanning tree on the port")

	return cmd
}

// --- port mcheck ---

func portMcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcheck <bridge> <port>",
		Short: "Force a port to retry RSTP after falling back to STP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			number, err := resolvePort(ctx, client, args[0], args[1])
			if err != nil {
				return err
			}

			if err := client.mcheck(ctx, args[0], number); err != nil {
				return fmt.Errorf("mcheck: %w", err)
			}

			fmt.Printf("Migration check requested on %s port %d.\n", args[0], number)

			return nil
		},
	}
}
