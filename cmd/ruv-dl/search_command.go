package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/domain"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var ignoreCase bool
	var onlyIDs bool
	var forceReload bool

	cmd := &cobra.Command{
		Use:   "search PATTERN...",
		Short: "Search programs by title or foreign title",
		Long: `Search programs by title or foreign title.
Quote patterns containing spaces: "pattern one" "pattern two".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := ctx.catalogService(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			programs, err := catalog.Programs(cmd.Context(), forceReload)
			if err != nil {
				return err
			}
			found := app.SearchPrograms(programs, args, ignoreCase)

			out := cmd.OutOrStdout()
			if onlyIDs {
				ids := make([]string, 0, len(found))
				for _, p := range found {
					ids = append(ids, p.ID)
				}
				fmt.Fprintln(out, strings.Join(ids, " "))
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Program title", "Foreign title", "Episode count", "Program ID", "Short description"},
				programRows(found),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "Ignore casing when matching")
	cmd.Flags().BoolVar(&onlyIDs, "only-ids", false, "Only print the ids of the programs found")
	cmd.Flags().BoolVar(&forceReload, "force-reload-programs", false, "Refresh the cached program list")
	return cmd
}

func programRows(programs []domain.Program) [][]string {
	rows := make([][]string, 0, len(programs))
	for _, p := range programs {
		rows = append(rows, []string{
			p.Title,
			p.ForeignTitle,
			strconv.Itoa(len(p.Episodes)),
			p.ID,
			truncate(p.ShortDescription, 40),
		})
	}
	return rows
}
