package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-dm/internal/app"
	"github.com/vovakirdan/wirechat-dm/internal/config"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr   string
		dbPath string
		driver string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the message log server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			cfg.UpdateFrom(config.Config{Addr: addr, DatabasePath: dbPath, FeedDriver: driver})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, c.log)
			if err != nil {
				return err
			}

			c.log.Info().Str("addr", cfg.Addr).Str("feed", cfg.FeedDriver).Msg("starting wirechat-dm server")
			if err := application.Run(ctx); err != nil && ctx.Err() == nil {
				c.log.Error().Err(err).Msg("server exited with error")
				return err
			}
			c.log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&driver, "feed", "", "change feed driver: local or nats")
	return cmd
}
