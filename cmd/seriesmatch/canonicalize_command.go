package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/catalog"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/search"
)

func newCanonicalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "canonicalize [catalog.jsonl | -]",
		Short: "Print the canonical records of a catalog dump as NDJSON",
		Long: "Merged records are collapsed into the record their merge chain ends at. " +
			"Reads the given file, or stdin when the argument is '-' or missing.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
			}

			logger := ctx.logger(cmd)
			snapshot, report, err := catalog.NewLoader(catalog.WithLogger(logger)).Load(cmd.Context(), input)
			if err != nil {
				return err
			}
			engine := search.NewQueryEngine(snapshot, search.WithEngineLogger(logger), search.WithIndex(false))

			enc := json.NewEncoder(cmd.OutOrStdout())
			records := engine.Canonicalize()
			for _, record := range records {
				if err := enc.Encode(record); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d records read, %d malformed, %d canonical\n",
				report.Loaded, report.Malformed, len(records))
			return nil
		},
	}
}
