package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/search"
)

var archiveExtensions = map[string]struct{}{
	".cbz": {}, ".cbr": {}, ".cb7": {}, ".zip": {}, ".rar": {}, ".7z": {},
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch <file or directory>...",
		Short: "Match every comic archive under the given paths",
		Long: "Titles are derived from archive file names. Directories are walked " +
			"recursively; only archive extensions are considered.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := collectBatchItems(args)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no comic archives found")
			}
			rt, err := ctx.ensureRuntime(cmd)
			if err != nil {
				return err
			}
			response := rt.Service.Batch(cmd.Context(), search.BatchRequest{
				Items:     items,
				Workers:   workers,
				LocalOnly: ctx.flags.localOnly,
			})

			asTable, err := ctx.useTable(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd, response)
			}
			printBatchResponse(cmd, response)
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent lookups (default $BATCH_WORKERS or CPU count)")
	return cmd
}

func collectBatchItems(paths []string) ([]domain.BatchItem, error) {
	var items []domain.BatchItem
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			items = append(items, domain.BatchItem{File: root})
			continue
		}
		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			if _, ok := archiveExtensions[strings.ToLower(filepath.Ext(path))]; ok {
				items = append(items, domain.BatchItem{File: path})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return items, nil
}

func printBatchResponse(cmd *cobra.Command, response domain.BatchResponse) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(response.Results))
	for _, result := range response.Results {
		match := ""
		if len(result.Items) > 0 {
			match = result.Items[0].Title
		} else if result.Error != "" {
			match = "error: " + result.Error
		}
		rows = append(rows, []string{
			shorten(filepath.Base(result.File), 40),
			shorten(result.Title, 40),
			string(result.Outcome),
			string(result.Source),
			shorten(match, 50),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"File", "Title", "Outcome", "Source", "Best match"}, rows, nil))
	fmt.Fprintf(out, "Matched %d, failed %d in %d ms (run %s)\n", response.Matched, response.Failed, response.ElapsedMS, response.RunID)
}
