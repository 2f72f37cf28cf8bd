package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teem-market/teem/internal/server"
	"github.com/teem-market/teem/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the status API server",
		Long: `Runs the HTTP status server: endpoint health, Prometheus metrics,
submission snapshots, and an async submission entry point.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			srv := server.New(server.Config{
				Host:        p.cfg.Server.Host,
				Port:        p.cfg.Server.Port,
				CORSOrigins: p.cfg.Server.CORSOrigins,
			}, p.orchestrator, p.probe, logger.New("server"))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}
