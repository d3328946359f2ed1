package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blueprintvision/internal/jobs"
	"blueprintvision/internal/pipeline"
	"blueprintvision/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cli, err := newClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cli.Close()

		jm := jobs.NewManager(logger.Named("jobs"))
		defer jm.Close()

		a := pipeline.New(cli, pipelineOptions(cfg), newStore(cfg), logger.Named("pipeline"))
		addr := cfg.Port
		if serveAddr != "" {
			addr = serveAddr
		}
		return server.New(a, jm, logger.Named("http")).Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to PORT)")
}
