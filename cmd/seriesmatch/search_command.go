package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <title or url>",
		Short: "Look up one series title, locally first and then remotely",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			rt, err := ctx.ensureRuntime(cmd)
			if err != nil {
				return err
			}
			result, err := rt.Service.Lookup(cmd.Context(), domain.LookupRequest{
				Title:     strings.Join(args, " "),
				Limit:     limit,
				LocalOnly: ctx.flags.localOnly,
			})
			if err != nil {
				return err
			}

			asTable, err := ctx.useTable(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd, result)
			}
			printLookupResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of matches (default $SEARCH_LIMIT or 30)")
	return cmd
}

func printLookupResult(cmd *cobra.Command, result domain.LookupResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Query:  %s\nSource: %s (%d ms)\n", result.Query, result.Source, result.ElapsedMS)
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	rows := make([][]string, 0, len(result.Items))
	for i, item := range result.Items {
		score := "-"
		if item.Score > 0 {
			score = strconv.Itoa(item.Score)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			score,
			item.EntryID,
			shorten(item.Title, 50),
			item.Year,
			shorten(item.MatchedText, 40),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Score", "ID", "Title", "Year", "Matched"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight},
	))
}
