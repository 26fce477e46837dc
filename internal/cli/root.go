package cli

import (
	"log/slog"
	"os"

	"github.com/me/enrolld/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking ENROLLD_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("ENROLLD_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the enrollctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "enrollctl",
		Short: "enrollctl — drive account provisioning batches",
		Long:  "enrollctl registers accounts, manages the resource pool, and runs provisioning batches against an enrolld server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.Options{
				Level:  logging.ParseLevel(flagLogLevel),
				Format: flagLogFormat,
			})
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "enrolld server URL (or ENROLLD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newAddCmd(),
		newListCmd(),
		newStatusCmd(),
		newResourcesCmd(),
		newRunCmd(),
		newBatchesCmd(),
		newStopCmd(),
	)

	return root
}
