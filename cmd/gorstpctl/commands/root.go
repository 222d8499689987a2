package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// requestTimeout bounds every non-streaming API call.
const requestTimeout = 10 * time.Second

var (
	// client talks to the daemon's management API, initialized in
	// PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands.
	outputFormat string

	// serverAddr is the daemon API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for gorstpctl.
var rootCmd = &cobra.Command{
	Use:   "gorstpctl",
	Short: "CLI client for the gorstp daemon",
	Long:  "gorstpctl talks to the gorstp management API to inspect and tune RSTP bridges.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient("http://"+serverAddr, http.DefaultClient)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8470",
		"gorstp daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format: table, json, yaml")

	rootCmd.AddCommand(bridgeCmd())
	rootCmd.AddCommand(portCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
