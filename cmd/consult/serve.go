package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/consult/pkg/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve consultation sessions over HTTP",
	Long: `Starts the REST API for consultation sessions, with server-sent events
for UIs, and a separate Prometheus metrics listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("metrics-port") {
			cfg.Server.MetricsPort, _ = cmd.Flags().GetInt("metrics-port")
		}

		logger, err := stderrLogger(cfg)
		if err != nil {
			return err
		}

		metrics := observability.NewMetrics()
		hooks := observability.Combine(metrics.Hooks(), observability.LogHooks(logger))

		client, closeStore, err := newClient(cfg, logger, hooks)
		if err != nil {
			return err
		}
		defer closeStore()

		servers := []*http.Server{{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           client.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if cfg.Server.MetricsPort > 0 {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			servers = append(servers, &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			g.Go(func() error {
				logger.Info("Listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server %s: %w", srv.Addr, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down", "timeout", shutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, err)
					_ = srv.Close()
				}
			}
			return errors.Join(errs...)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("Server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port for the REST API")
	serveCmd.Flags().Int("metrics-port", 9090, "Port for /metrics (0 disables it)")
}
