package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/app"
	"github.com/Ark1369/CBZ-Metadata-Manager/internal/remote"
)

type globalFlags struct {
	catalogPath string
	cachePath   string
	scoringPath string
	localOnly   bool
	output      string
	logLevel    string
}

// commandContext builds the runtime lazily so commands that only touch the
// cache or stdin never load the catalog.
type commandContext struct {
	flags *globalFlags

	runtimeOnce sync.Once
	runtime     *app.Runtime
	runtimeErr  error

	closers []func() error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) config() app.Config {
	cfg := app.LoadConfig()
	if path := strings.TrimSpace(c.flags.catalogPath); path != "" {
		cfg.CatalogPath = path
	}
	if path := strings.TrimSpace(c.flags.cachePath); path != "" {
		cfg.CachePath = path
	}
	if path := strings.TrimSpace(c.flags.scoringPath); path != "" {
		cfg.ScoringConfigPath = path
	}
	if c.flags.localOnly {
		cfg.LocalOnly = true
	}
	return cfg
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	return app.NewLogger(c.flags.logLevel, "text", cmd.ErrOrStderr())
}

func (c *commandContext) ensureRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	c.runtimeOnce.Do(func() {
		rt, err := app.Build(cmd.Context(), c.config(), c.logger(cmd))
		if err != nil {
			c.runtimeErr = err
			return
		}
		c.runtime = rt
		c.closers = append(c.closers, rt.Close)
	})
	return c.runtime, c.runtimeErr
}

func (c *commandContext) openCache(cmd *cobra.Command) (*remote.FileCache, error) {
	cache, closeCache, err := app.OpenResponseCache(cmd.Context(), c.config(), c.logger(cmd))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeCache)
	return cache, nil
}

func (c *commandContext) close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

// useTable reports whether results should be rendered as a table rather
// than JSON. Auto mode renders tables only for terminals.
func (c *commandContext) useTable(out io.Writer) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.flags.output)) {
	case "", "auto":
		return isTerminal(out), nil
	case "table":
		return true, nil
	case "json":
		return false, nil
	default:
		return false, fmt.Errorf("unknown output format %q (want auto, table or json)", c.flags.output)
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
