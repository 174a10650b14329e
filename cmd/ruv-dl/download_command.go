package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/config"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var parallel int
	var audioOnly bool
	var verifyExisting bool
	var forceReload bool

	cmd := &cobra.Command{
		Use:     "download [PROGRAM_ID...]",
		Aliases: []string{"download-program"},
		Short:   "Download every episode of the given programs not downloaded yet",
		Long: `Download every episode of the given programs not downloaded yet.
Program ids are read from stdin when none are given, e.g.
  ruv-dl search --only-ids "Krakkafréttir" | ruv-dl download`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if cmd.Flags().Changed("quality") {
				cfg.Quality = quality
			}
			if cmd.Flags().Changed("parallel") {
				cfg.MaxParallelDownloads = parallel
			}
			if cmd.Flags().Changed("audio-only") {
				cfg.AudioOnly = audioOnly
			}
			if cmd.Flags().Changed("verify-existing") {
				cfg.VerifyExisting = verifyExisting
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ids, err := programIDs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			// SIGINT arrête proprement: les épisodes terminés restent au ledger.
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runDownload(runCtx, ctx, cfg, ids, forceReload)
			if err != nil {
				return err
			}
			printRunResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", "", fmt.Sprintf("Quality to download, one of %v (default from config)", config.Qualities))
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Number of episodes downloaded at once (default from config)")
	cmd.Flags().BoolVar(&audioOnly, "audio-only", false, "Only keep the audio track")
	cmd.Flags().BoolVar(&verifyExisting, "verify-existing", false, "Check the integrity of files already present before skipping them")
	cmd.Flags().BoolVar(&forceReload, "force-reload-programs", false, "Refresh the cached program list first")
	return cmd
}

func runDownload(ctx context.Context, cctx *commandContext, cfg config.Config, ids []string, forceReload bool) (app.RunResult, error) {
	catalog, err := cctx.catalogService(ctx, cfg)
	if err != nil {
		return app.RunResult{}, err
	}
	if forceReload {
		if _, err := catalog.Programs(ctx, true); err != nil {
			return app.RunResult{}, err
		}
	}
	episodes, err := catalog.Episodes(ctx, ids, cfg.Quality)
	if err != nil {
		return app.RunResult{}, err
	}

	bus := memorybus.New()
	stopped := app.NewProgressReporter(cctx.logger, bus).Start(context.WithoutCancel(ctx))
	defer func() {
		// Fermer le bus laisse le reporter vider les derniers événements.
		bus.Close()
		<-stopped
	}()

	cctx.logger.Info().Int("episodes", len(episodes)).Str("quality", cfg.Quality).Msg("starting download")
	return cctx.orchestrator(cfg, bus).Run(ctx, episodes)
}

func printRunResult(cmd *cobra.Command, res app.RunResult) {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	if len(res.Downloaded) == 0 && len(res.Skipped) == 0 {
		fmt.Fprintln(out, "No episodes downloaded.")
	}
	for _, ep := range res.Downloaded {
		fmt.Fprintln(out, app.CanonicalName(ep))
	}
	for _, ep := range res.Skipped {
		fmt.Fprintln(out, app.CanonicalName(ep))
	}
	for _, f := range res.Failed {
		fmt.Fprintf(errOut, "failed: %s (%s): %s\n", app.CanonicalName(f.Episode), f.Code, f.Reason)
	}
	if res.Interrupted {
		fmt.Fprintln(errOut, "Stopped before all episodes were downloaded.")
	}
}
