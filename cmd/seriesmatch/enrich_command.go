package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <anilist id | links>",
		Short: "Fetch contributor and character credits for a series",
		Long: "Accepts a numeric AniList id or a comma- or newline-separated link " +
			"list containing an anilist.co manga URL.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd)
			if err != nil {
				return err
			}
			credits, err := rt.Service.Enrich(cmd.Context(), strings.Join(args, ","))
			if err != nil {
				return err
			}

			asTable, err := ctx.useTable(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd, credits)
			}
			rows := [][]string{
				{"Writer", credits.Writer},
				{"Penciller", credits.Penciller},
				{"Inker", credits.Inker},
				{"Colorist", credits.Colorist},
				{"Letterer", credits.Letterer},
				{"CoverArtist", credits.CoverArtist},
				{"Editor", credits.Editor},
				{"Translator", credits.Translator},
				{"Characters", shorten(credits.Characters, 200)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
