// Command blueprint analyzes engineering diagrams (P&ID, HVAC) with a vision
// model and decodes ISA-5.1 instrument tags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blueprintvision/internal/config"
	"blueprintvision/internal/logging"
)

var (
	verbose bool
	mock    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "blueprint",
	Short:         "Detect components and connections in engineering diagrams",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if mock {
			_ = os.Setenv("MOCK_MODE", "true")
		}
		var err error
		if cmd.Name() == "tag" {
			// tag decoding is offline; skip oracle configuration checks
			cfg = &config.Config{LogLevel: "info", LogFormat: "console"}
		} else if cfg, err = config.Load(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&mock, "mock", false, "serve oracle replies from MOCK_DATA_PATH")
	rootCmd.AddCommand(analyzeCmd, tagCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
