package factory

import (
	"context"
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/adapters/audit"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// AuditStore is the audit trail plus the read side used by the history command
type AuditStore interface {
	core.AuditStore
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
	Close() error
}

// AuditFactory creates audit stores based on configuration
type AuditFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAuditFactory creates a new audit factory
func NewAuditFactory(cfg *config.Config, logger *zap.Logger) *AuditFactory {
	return &AuditFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAuditStore creates an audit store based on the configuration
func (f *AuditFactory) CreateAuditStore() (AuditStore, error) {
	sc := f.cfg.GetStore()

	switch sc.Type {
	case "memory":
		f.logger.Warn("Using in-memory audit store, the watermark will not survive a restart")
		return audit.NewMemoryStore(), nil
	case "sqlite":
		return audit.NewSQLiteStore(sc.SQLitePath, f.logger)
	case "mysql":
		return audit.NewMySQLStore(sc.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
