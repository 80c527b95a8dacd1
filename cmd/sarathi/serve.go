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

	"github.com/mmcdole/sarathi/internal/adapter"
	"github.com/mmcdole/sarathi/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the offline interceptor in front of the content origin",
		Long: `Run the offline interceptor.

On start the configured cache generation is installed (and activated when
skip_waiting is set). Every request is then answered from the origin or the
live generation according to the cache strategy. Admin routes live under
/_worker and metrics under /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Worker.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides worker.listen)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	// Console output alongside the log file for the long-running process
	console := adapter.ConsoleLogger(os.Stderr, a.cfg.Logging.Level)

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if a.cfg.Worker.Metrics {
		r := prometheus.NewRegistry()
		r.MustRegister(collectors.NewGoCollector())
		r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg, gatherer = r, r
	}

	cache, closeCache, err := a.openCache(reg)
	if err != nil {
		return err
	}
	defer closeCache()

	interceptor := worker.New(cache, worker.Config{
		Version:     a.cfg.Cache.Version,
		Assets:      a.cfg.Cache.Assets,
		SkipWaiting: a.cfg.Worker.SkipWaiting,
	}, a.logger)

	live, _ := cache.Live()
	switch {
	case interceptor.State() == worker.StateReady:
		// Installed earlier without activation.
		if a.cfg.Worker.SkipWaiting {
			if err := interceptor.Activate(ctx); err != nil {
				console.Warn("activate failed, serving previous generation", "error", err, "live", live)
			}
		}
	case live != a.cfg.Cache.Version:
		if err := interceptor.Install(ctx, nil); err != nil {
			// Keep serving whatever generation is live.
			console.Warn("install failed, serving previous generation", "error", err, "live", live)
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Worker.Listen,
		Handler:           worker.NewHandler(interceptor, a.logger, worker.HandlerOptions{Gatherer: gatherer}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		console.Info("interceptor listening",
			"addr", a.cfg.Worker.Listen,
			"origin", a.cfg.Server.URL,
			"strategy", cache.Strategy().Name(),
			"state", interceptor.State().String(),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	console.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
