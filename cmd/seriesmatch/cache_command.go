package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the remote response cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached query keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			keys := cache.Keys()
			asTable, err := ctx.useTable(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd, map[string]any{"path": cache.Path(), "keys": keys})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s (%d entries)\n", cache.Path(), len(keys))
			for _, key := range keys {
				fmt.Fprintf(out, "  - %s\n", key)
			}
			return nil
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <query>",
		Short: "Drop the cached response for one query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := remote.CacheKey(strings.Join(args, " "))
			if key == "" {
				return fmt.Errorf("query is empty; use `seriesmatch cache clear` to drop everything")
			}
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			if err := cache.Delete(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %q\n", key)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd)
			if err != nil {
				return err
			}
			count := cache.Len()
			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached responses\n", count)
			return nil
		},
	}
}
