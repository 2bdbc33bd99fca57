package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// FileSink writes the Markdown report to <dir>/<date>.md. A later run on
// the same day replaces the file.
type FileSink struct {
	dir      string
	renderer *Renderer
	logger   *zap.Logger
}

// NewFileSink creates a new file sink
func NewFileSink(dir string, renderer *Renderer, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{dir: dir, renderer: renderer, logger: logger}
}

// Path returns the file a report is written to
func (s *FileSink) Path(report core.RunReport) string {
	return filepath.Join(s.dir, report.FinishedAt.Format("2006-01-02")+".md")
}

// Deliver implements core.ReportSink
func (s *FileSink) Deliver(ctx context.Context, report core.RunReport) error {
	md, err := s.renderer.Render(report)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	path := s.Path(report)
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	s.logger.Info("Report saved", zap.String("path", path))
	return nil
}

// LogSink writes a summary of every report to the logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements core.ReportSink
func (s *LogSink) Deliver(_ context.Context, report core.RunReport) error {
	s.logger.Info("Run report",
		zap.String("run_id", report.RunID),
		zap.Bool("dry_run", report.DryRun),
		zap.Int("kept", report.Counts[core.ActionKeep]),
		zap.Int("labelled", report.Counts[core.ActionLabel]),
		zap.Int("archived", report.Counts[core.ActionArchive]),
		zap.Int("trashed", report.Counts[core.ActionTrash]),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration()))
	return nil
}
