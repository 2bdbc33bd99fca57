package factory

import (
	"fmt"
	"strings"

	"github.com/mikey/llm-mail-triage/internal/adapters/report"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/credential"
	"go.uber.org/zap"
)

// ReportFactory creates the report sinks
type ReportFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	secrets *credential.Store
}

// NewReportFactory creates a new report factory
func NewReportFactory(cfg *config.Config, logger *zap.Logger, secrets *credential.Store) *ReportFactory {
	return &ReportFactory{
		cfg:     cfg,
		logger:  logger,
		secrets: secrets,
	}
}

// CreateRenderer creates the Markdown renderer
func (f *ReportFactory) CreateRenderer() *report.Renderer {
	mode := f.cfg.GetMode()
	action, _ := core.ParseAction(mode.Action)
	return report.NewRenderer(action).WithPreserveDays(mode.PreserveDays)
}

// CreateSinks returns every configured sink. The log sink is always present.
func (f *ReportFactory) CreateSinks() ([]core.ReportSink, error) {
	rc := f.cfg.GetReport()
	renderer := f.CreateRenderer()

	sinks := []core.ReportSink{report.NewLogSink(f.logger)}

	if rc.SaveDir != "" {
		sinks = append(sinks, report.NewFileSink(rc.SaveDir, renderer, f.logger))
	}

	if rc.Email.Enabled {
		password, err := f.secrets.Resolve(rc.Email.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve SMTP password: %w", err)
		}
		sinks = append(sinks, report.NewSMTPSink(report.SMTPConfig{
			Addr:     rc.Email.SMTPAddr,
			From:     rc.Email.From,
			To:       splitList(rc.Email.To),
			Username: rc.Email.Username,
			Password: password,
		}, renderer, f.logger))
	}

	return sinks, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
