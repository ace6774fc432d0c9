package catalog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

const maxLineBytes = 16 * 1024 * 1024

// LoadReport summarizes what happened while reading a catalog dump.
type LoadReport struct {
	Lines       int `json:"lines"`
	Loaded      int `json:"loaded"`
	Malformed   int `json:"malformed"`
	Duplicates  int `json:"duplicates"`
	FieldIssues int `json:"fieldIssues"`
}

type Loader struct {
	logger *slog.Logger
}

type LoaderOption func(*Loader)

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	loader := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// LoadFile reads a newline-delimited JSON dump from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Snapshot, LoadReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	return l.Load(ctx, file)
}

// Load reads records one line at a time. Malformed lines are logged and
// skipped; only I/O failures and cancellation abort the load.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Snapshot, LoadReport, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var report LoadReport
	records := make([]domain.CatalogRecord, 0, 1024)
	seen := make(map[string]struct{})
	for scanner.Scan() {
		report.Lines++
		if report.Lines%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		record, issues, err := DecodeRecord(line)
		if len(issues) > 0 {
			report.FieldIssues += len(issues)
			for _, issue := range issues {
				l.logger.Warn("catalog record field dropped",
					slog.String("kind", "malformed_record"),
					slog.Int("line", report.Lines),
					slog.String("field", issue.Field),
					slog.String("reason", issue.Reason),
				)
			}
		}
		if err != nil {
			report.Malformed++
			var recordErr *RecordError
			if errors.As(err, &recordErr) {
				recordErr.Line = report.Lines
			}
			l.logger.Warn("catalog record skipped",
				slog.String("kind", "malformed_record"),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, dup := seen[record.ID.String()]; dup {
			report.Duplicates++
			l.logger.Debug("duplicate catalog id", slog.String("recordId", record.ID.String()), slog.Int("line", report.Lines))
		}
		seen[record.ID.String()] = struct{}{}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, report, fmt.Errorf("read catalog: %w", err)
	}

	report.Loaded = len(records)
	l.logger.Info("catalog loaded",
		slog.Int("records", report.Loaded),
		slog.Int("malformed", report.Malformed),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("fieldIssues", report.FieldIssues),
	)
	return NewSnapshot(records), report, nil
}
