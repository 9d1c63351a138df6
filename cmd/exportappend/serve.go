package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/exportappend/internal/importer"
	"github.com/JonMunkholm/exportappend/internal/metrics"
	"github.com/JonMunkholm/exportappend/internal/store"
	"github.com/JonMunkholm/exportappend/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	var (
		observer importer.Observer = importer.NopObserver{}
		opts                       = web.Options{Server: a.cfg.Server, Security: a.cfg.Security}
	)
	if a.cfg.Metrics.Enabled {
		m := metrics.New()
		observer = m
		opts.Metrics = m.Handler()
		opts.MetricsPath = a.cfg.Metrics.Path
	}

	p, err := a.pipeline(st, observer)
	if err != nil {
		return err
	}

	var catalog store.Catalog
	if st != nil {
		catalog = st
	}
	service := importer.NewService(p, catalog,
		importer.NewLimiter(a.cfg.Import.MaxConcurrent),
		importer.ServiceOptions{
			TableSuffix: a.cfg.Import.TableSuffix,
			ResultTTL:   a.cfg.Import.ResultTTL,
		})

	server := web.NewServer(service, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(a.cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Wait for running imports before closing the store under them.
	if status := service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for imports to complete", "active", status.Active)
		if err := service.Wait(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		} else {
			slog.Info("all imports completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
