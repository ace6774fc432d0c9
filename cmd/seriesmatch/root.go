package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "seriesmatch",
		Short:         "Match comic archive titles against the series catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.catalogPath, "catalog", "", "Catalog NDJSON dump (default $CATALOG_PATH or series.jsonl)")
	pf.StringVar(&flags.cachePath, "cache", "", "Response cache file (default $CACHE_PATH or api_cache.json)")
	pf.StringVar(&flags.scoringPath, "scoring", "", "TOML file overriding scoring thresholds")
	pf.BoolVar(&flags.localOnly, "local-only", false, "Never query the remote catalog")
	pf.StringVarP(&flags.output, "output", "o", "auto", "Output format: auto, table or json")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newCanonicalizeCommand(ctx))
	rootCmd.AddCommand(newEnrichCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
