package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dantte-lp/gorstp/internal/server"
)

// errNothingToSet is returned by the set commands when no flag was given.
var errNothingToSet = errors.New("no settings given")

func bridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Inspect and tune bridges",
	}

	cmd.AddCommand(bridgeListCmd())
	cmd.AddCommand(bridgeShowCmd())
	cmd.AddCommand(bridgeSetCmd())

	return cmd
}

// --- bridge list ---

func bridgeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all bridges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			bridges, err := client.bridges(ctx)
			if err != nil {
				return fmt.Errorf("list bridges: %w", err)
			}

			out, err := formatBridges(bridges, outputFormat)
			if err != nil {
				return fmt.Errorf("format bridges: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- bridge show ---

func bridgeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <bridge>",
		Short: "Show a bridge and its ports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			b, err := client.bridge(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get bridge: %w", err)
			}

			out, err := formatBridge(b, outputFormat)
			if err != nil {
				return fmt.Errorf("format bridge: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- bridge set ---

func bridgeSetCmd() *cobra.Command {
	var (
		priority     uint16
		maxAge       uint16
		helloTime    uint16
		forwardDelay uint16
		txHoldCount  uint16
		forceVersion string
		flush        string
	)

	cmd := &cobra.Command{
		Use:   "set <bridge>",
		Short: "Change bridge parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()

			var p server.BridgePatch
			p.Priority = changedUint16(flags, "priority", priority)
			p.MaxAge = changedUint16(flags, "max-age", maxAge)
			p.HelloTime = changedUint16(flags, "hello-time", helloTime)
			p.ForwardDelay = changedUint16(flags, "forward-delay", forwardDelay)
			p.TxHoldCount = changedUint16(flags, "tx-hold-count", txHoldCount)
			p.ForceVersion = changedString(flags, "force-version", forceVersion)
			p.FlushStrategy = changedString(flags, "flush", flush)
			if p == (server.BridgePatch{}) {
				return errNothingToSet
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			b, err := client.patchBridge(ctx, args[0], p)
			if err != nil {
				return fmt.Errorf("set bridge: %w", err)
			}

			out, err := formatBridge(b, outputFormat)
			if err != nil {
				return fmt.Errorf("format bridge: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&priority, "priority", 0, "bridge priority, a multiple of 4096")
	flags.Uint16Var(&maxAge, "max-age", 0, "max age in seconds (6-40)")
	flags.Uint16Var(&helloTime, "hello-time", 0, "hello time in seconds (1-10)")
	flags.Uint16Var(&forwardDelay, "forward-delay", 0, "forward delay in seconds (4-30)")
	flags.Uint16Var(&txHoldCount, "tx-hold-count", 0, "BPDUs per hello time (1-10)")
	flags.StringVar(&forceVersion, "force-version", "", "protocol version: stp or rstp")
	flags.StringVar(&flush, "flush", "", "FDB flush strategy: this_port or other_ports")

	return cmd
}

// changedUint16 returns &v when the named flag was set on the command line.
func changedUint16(flags *pflag.FlagSet, name string, v uint16) *uint16 {
	if !flags.Changed(name) {
		return nil
	}
	return &v
}

func changedString(flags *pflag.FlagSet, name, v string) *string {
	if !flags.Changed(name) {
		return nil
	}
	return &v
}

func changedBool(flags *pflag.FlagSet, name string, v bool) *bool {
	if !flags.Changed(name) {
		return nil
	}
	return &v
}
