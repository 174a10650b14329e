package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/buildinfo"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (search, downloads, progress events)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Addr
			}
			logger := ctx.logger
			logger.Info().Str("build", buildinfo.Current().String()).Str("work_dir", cfg.WorkDir).Msg("starting")

			shutdownCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			catalog, err := ctx.catalogService(shutdownCtx, *cfg)
			if err != nil {
				return err
			}
			bus := memorybus.New()
			defer bus.Close()

			// Le reporter journalise l'avancement des runs lancés via l'API.
			reporterStopped := app.NewProgressReporter(logger, bus).Start(shutdownCtx)

			ledger := ctx.ledger(*cfg)
			downloads := app.NewDownloadService(logger, catalog, ctx.orchestrator(*cfg, bus), cfg.Quality)

			srv := httpapi.NewServer(shutdownCtx, logger, ledger, catalog, downloads, bus)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				logger.Info().Str("addr", addr).Msg("listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("http server crashed")
					stop()
				}
			}()

			<-shutdownCtx.Done()
			logger.Info().Msg("shutting down")

			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(sctx)
			// Le run en cours voit shutdownCtx annulé et s'arrête proprement.
			downloads.Wait()
			<-reporterStopped
			logger.Info().Msg("bye")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, e.g. 127.0.0.1:8080)")
	return cmd
}
