package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd)
			if err != nil {
				return err
			}
			stats := rt.Service.Stats()
			asTable, err := ctx.useTable(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd, map[string]any{"catalog": stats, "load": rt.Report})
			}
			rows := [][]string{
				{"Records", strconv.Itoa(stats.Records)},
				{"Merged", strconv.Itoa(stats.Merged)},
				{"Active", strconv.Itoa(stats.Active)},
				{"Canonical", strconv.Itoa(stats.Canonical)},
				{"Index keys", strconv.Itoa(stats.IndexKeys)},
				{"Malformed lines", strconv.Itoa(rt.Report.Malformed)},
				{"Fingerprint", stats.Fingerprint},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Catalog", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
