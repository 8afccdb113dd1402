package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/webhook"
)

func serveCmd() *cobra.Command {
	var addr, adminAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and task worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if adminAddr != "" {
				cfg.Server.AdminAddr = adminAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			a, err := buildApp(ctx, cfg, reg)
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.logger

			if _, err := a.client.HandleFunc([]string{webhook.Wildcard}, func(ctx context.Context, evt webhook.Event) error {
				logger.InfoContext(ctx, "webhook event",
					"event", evt.RawType,
					"instance", evt.Instance,
					"event_id", evt.ID.String(),
				)
				return nil
			}, webhook.WithName("log")); err != nil {
				return err
			}

			mux := http.NewServeMux()
			if cfg.Metrics.Enabled {
				mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			}
			mux.Handle("/", a.client.Handler())

			servers := []*http.Server{{
				Addr:         cfg.Server.Addr,
				Handler:      mux,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}}
			if cfg.Server.AdminAddr != "" {
				if cfg.Server.AdminToken == "" {
					logger.Warn("admin listener has no token; bind it to a private address",
						"admin_addr", cfg.Server.AdminAddr)
				}
				servers = append(servers, &http.Server{
					Addr:         cfg.Server.AdminAddr,
					Handler:      a.client.AdminHandler(),
					ReadTimeout:  cfg.Server.ReadTimeout,
					WriteTimeout: cfg.Server.WriteTimeout,
				})
			}

			a.client.Start(ctx)

			errCh := make(chan error, len(servers))
			logger.Info("evolutiond started",
				"addr", cfg.Server.Addr,
				"admin_addr", cfg.Server.AdminAddr,
				"queue", cfg.Queue.Backend,
				"webhook_mode", cfg.Webhook.Mode,
			)
			for _, srv := range servers {
				go func(srv *http.Server) {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}(srv)
			}

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case serveErr = <-errCh:
				serveErr = fmt.Errorf("http server: %w", serveErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("http shutdown", "addr", srv.Addr, "error", err)
				}
			}
			if err := a.client.Stop(shutdownCtx); err != nil {
				logger.Warn("worker shutdown", "error", err)
			}
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown", "error", err)
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "Admin listen address (overrides server.admin_addr)")
	return cmd
}
