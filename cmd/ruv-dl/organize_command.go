package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "organize [FILE...]",
		Short: "Move downloaded TV shows into <Show>/Season NN folders",
		Long: `Move downloaded TV shows from the downloads directory into the organized
directory, using the layout understood by Plex and similar tools.

This is a best effort: episode numbers come from RÚV and are often wrong.
When no file is given, every file of the downloads directory is considered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			paths := args
			if len(paths) == 0 {
				paths, err = filepath.Glob(filepath.Join(cfg.DownloadDir, "*.mp4"))
				if err != nil {
					return err
				}
			}
			translations, err := app.ReadTranslations(cfg.TranslationsPath)
			if err != nil {
				return err
			}
			organizer := app.NewOrganizer(ctx.logger, cfg.OrganizedDir, translations)
			moves, err := organizer.Organize(cmd.Context(), paths, dryRun)

			out := cmd.OutOrStdout()
			for _, m := range moves {
				if m.To == "" {
					fmt.Fprintf(out, "%s\t%s\n", m.Status, m.From)
					continue
				}
				fmt.Fprintf(out, "%s\t%s -> %s\n", m.Status, m.From, m.To)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Only print what would be moved")
	return cmd
}
