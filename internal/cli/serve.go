package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/audit"
	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/lifecycle"
	"github.com/flashgate/flashgate/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		auditFile  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the flashgate HTTP server",
		Long: `Starts an HTTP server exposing the admission gate.

Endpoints:
  GET  /health                    Health check
  GET  /api/verify?item=&user=    Full admission pipeline: attempt, block check, token
  POST /api/attempt?user=         Advance the per-user attempt counter
  GET  /api/blocked?user=         Report the block verdict
  WS   /ws                        Live feed of admission decisions`,
		Example: `  flashgate serve --config flashgate.json
  flashgate serve --config flashgate.json --audit decisions.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			clk := clock.NewRealClock()

			// The runner owns the store's connection lifetime; Stop is safe
			// to reach from multiple exit paths.
			var gate *gateComponents
			runner := lifecycle.NewRunner(lifecycle.Hooks{
				Start: func() error {
					var err error
					gate, err = newGate(cfg, clk, log)
					return err
				},
				Stop: func() error { return gate.store.Close() },
			})
			if err := runner.Start(); err != nil {
				return err
			}
			defer runner.Stop()

			var trail *audit.Trail
			opts := server.Options{
				Hub: server.NewHub(log),
			}
			if auditFile != "" {
				trail = audit.New(nil)
				opts.Trail = trail
			}

			srv := server.New(cfg.Server.Addr, gate.controller, clk, log, opts)

			log.Info("starting flashgate",
				zap.String("addr", cfg.Server.Addr),
				zap.String("backend", cfg.Store.Backend),
				zap.Int64("allow_count", cfg.Admission.AllowCount))

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				return drainAndExport(srv, trail, auditFile, log)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flashgate.json", "path to the config file")
	cmd.Flags().StringVar(&auditFile, "audit", "", "export admission decisions to this file on shutdown")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level with console output")

	return cmd
}

// drainAndExport stops accepting new requests, waits for in-flight
// handlers to finish, and only then exports the audit trail, so decisions
// completed during the drain are included in the file.
func drainAndExport(srv *server.Server, trail *audit.Trail, auditFile string, log *zap.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	if trail != nil {
		log.Info("exporting audit trail",
			zap.Int("events", trail.Len()),
			zap.String("file", auditFile))
		if exportErr := trail.ExportFile(auditFile); exportErr != nil {
			log.Error("audit export failed", zap.Error(exportErr))
		}
	}
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
