package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/adlift/internal/monitor"
	"github.com/headline-goat/adlift/internal/server"
	"github.com/headline-goat/adlift/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port        int
		withMonitor bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the adlift HTTP API.

The server provides:
  - GET  /api/tests                  list tests (?status=running)
  - GET  /api/tests/{id}/results     significance results per variant
  - GET  /api/tests/{id}/status      progress, leader and warnings
  - POST /api/tests/{id}/conclude    lock the winner and stop the test
  - GET  /health, /metrics

Example:
  adlift serve --port 8080 --monitor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = cfg.HTTPPort
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(func(s *store.SQLiteStore) error {
				eng, cleanup, err := newEngine(ctx, s)
				if err != nil {
					return err
				}
				defer cleanup()

				srv := server.New(s, eng, server.Options{
					Port:      port,
					Token:     cfg.Token,
					TokenFile: tokenFilePath(),
					Logger:    logger,
				})

				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				fmt.Fprintf(out, "adlift running on http://localhost:%d\n", port)
				fmt.Fprintf(out, "API token: %s\n", srv.Token())
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Press Ctrl+C to stop")

				g, gCtx := errgroup.WithContext(ctx)
				g.Go(func() error { return srv.Start(gCtx) })
				if withMonitor {
					m := monitor.New(s, eng, logger, cfg.MonitorConcurrency)
					g.Go(func() error { return m.Run(gCtx, cfg.MonitorInterval) })
				}
				return g.Wait()
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&withMonitor, "monitor", false, "also run the auto-conclude monitor")
	return cmd
}
