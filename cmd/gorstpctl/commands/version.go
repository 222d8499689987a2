package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/gorstp/internal/version"
)

func versionCmd() *cobra.Command {
	var withDaemon bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print gorstpctl build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Println(appversion.Full("gorstpctl"))
			if !withDaemon {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			info, err := client.version(ctx)
			if err != nil {
				return fmt.Errorf("daemon version: %w", err)
			}
			fmt.Printf("gorstp %s\n  commit:  %s\n  built:   %s\n  go:      %s\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDaemon, "daemon", false, "also query the running daemon")

	return cmd
}
