package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
)

func newDetailsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details [PROGRAM_ID...]",
		Short: "List the episodes of programs with their available qualities",
		Long: `List the episodes of programs with their available qualities.
Program ids are read from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ids, err := programIDs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			catalog, err := ctx.catalogService(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			details := app.NewDetailsService(ctx.logger, catalog, ctx.resolver(*cfg), cfg.CatalogConcurrency)
			rows, err := details.Details(cmd.Context(), ids)
			if err != nil {
				return err
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{
					r.ProgramTitle,
					r.ForeignTitle,
					r.Title,
					r.ProgramID,
					r.EpisodeID,
					truncate(r.ShortDescription, 40),
					strings.Join(r.Qualities, "/"),
					r.URL,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Program title", "Foreign title", "Title", "Program ID", "Episode ID", "Short description", "Qualities", "URL"},
				table,
				nil,
			))
			return nil
		},
	}
	return cmd
}
