package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gorstp/internal/server"
)

// snapshotEvent is the SSE event name of the bridge snapshots sent before
// live events when --current is given.
const snapshotEvent = "bridge"

func monitorCmd() *cobra.Command {
	var includeCurrent bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream role, root, topology and link events",
		Long:  "Connects to the gorstp daemon and streams bridge events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := client.streamEvents(ctx, includeCurrent, func(name string, data []byte) error {
				out, err := renderStreamEvent(name, data, outputFormat)
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			})
			// Context cancellation (Ctrl+C) is expected, not an error.
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stream events: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&includeCurrent, "current", false,
		"print every bridge before streaming changes")

	return cmd
}

// renderStreamEvent decodes one SSE payload and formats it.
func renderStreamEvent(name string, data []byte, format string) (string, error) {
	if name == snapshotEvent {
		var b server.Bridge
		if err := json.Unmarshal(data, &b); err != nil {
			return "", fmt.Errorf("decode bridge snapshot: %w", err)
		}
		if format == formatTable {
			return formatBridgesTable([]server.Bridge{b})
		}
		return marshalOutput(b, format)
	}

	var ev server.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("decode %s event: %w", name, err)
	}
	out, err := formatEvent(ev, format)
	if err != nil {
		return "", fmt.Errorf("format event: %w", err)
	}
	if format == formatTable {
		out += "\n"
	}
	return out, nil
}
