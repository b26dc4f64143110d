package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yunqiqiliang/embedgate/internal/obs"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Embedgate broker",
	Long: `Run the guest token broker.

Required settings: SUPERSET_URL, ADMIN_USERNAME, ADMIN_PASSWORD, ALLOWED_ORIGINS
and REDIS_URL (unless --cache-backend=memory).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := f.BuildRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Error().Err(err).Msg("closing resources")
			}
		}()

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           rt.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		errCh := make(chan error, 2)
		go func() {
			log.Info().Msgf("Starting server on %s...", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server crashed: %w", err)
			}
		}()

		var metricsServer *http.Server
		if cfg.Server.MetricsAddr != "" {
			obs.Init()
			mux := http.NewServeMux()
			mux.Handle("/metrics", obs.Handler())
			metricsServer = &http.Server{
				Addr:              cfg.Server.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Info().Msgf("Serving metrics on %s/metrics", cfg.Server.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("metrics server crashed: %w", err)
				}
			}()
		}

		var runErr error
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down server...")
		case runErr = <-errCh:
			log.Error().Err(runErr).Msg("Shutting down after listener failure")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":3001", "address to listen on")
	bindFlag(serveCmd.Flags(), "server.addr", "addr")

	serveCmd.Flags().String("metrics-addr", "", "address of the Prometheus metrics listener (disabled if empty)")
	bindFlag(serveCmd.Flags(), "server.metrics_addr", "metrics-addr")

	serveCmd.Flags().String("cache-backend", "redis", "cache backend (redis, memory)")
	bindFlag(serveCmd.Flags(), "cache.backend", "cache-backend")

	serveCmd.Flags().Bool("trust-proxy", false, "take the client address from X-Forwarded-For")
	bindFlag(serveCmd.Flags(), "server.trust_proxy", "trust-proxy")
}
