package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() (*cobra.Command, *commandContext) {
	var workDirFlag string
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&workDirFlag, &configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:   "ruv-dl",
		Short: "Download TV programs from RÚV",
		Long: `Download TV programs from RÚV.

Downloaded content is placed in "$WORK_DIR/downloads", the list of completed
episodes is kept in "$WORK_DIR/downloaded.jsonl" and the program list is cached
in "$WORK_DIR/programs.db".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			ctx.stderr = cmd.ErrOrStderr()
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	rootCmd.PersistentFlags().StringVar(&workDirFlag, "work-dir", cwd, "Working directory (downloads, ledger, caches)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $WORK_DIR/ruv-dl.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Console log level (debug, info, warn, error)")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newDetailsCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newOrganizeCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd, ctx
}
