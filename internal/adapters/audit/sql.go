package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// Supported SQL dialects
const (
	DialectSQLite = "sqlite3"
	DialectMySQL  = "mysql"
)

const watermarkKey = "last_run"

var schemas = map[string][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS triage_meta (
			meta_key TEXT PRIMARY KEY,
			meta_value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS triage_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at DATETIME NOT NULL,
			run_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			action TEXT NOT NULL,
			decided_by TEXT NOT NULL,
			rule TEXT NOT NULL,
			reason TEXT NOT NULL,
			subject TEXT NOT NULL,
			sender TEXT NOT NULL,
			dry_run BOOLEAN NOT NULL,
			executed BOOLEAN NOT NULL,
			error_text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triage_audit_run ON triage_audit(run_id)`,
	},
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS triage_meta (
			meta_key VARCHAR(64) PRIMARY KEY,
			meta_value VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS triage_audit (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			recorded_at DATETIME(6) NOT NULL,
			run_id VARCHAR(64) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			action VARCHAR(16) NOT NULL,
			decided_by VARCHAR(16) NOT NULL,
			rule VARCHAR(128) NOT NULL,
			reason TEXT NOT NULL,
			subject TEXT NOT NULL,
			sender VARCHAR(512) NOT NULL,
			dry_run BOOLEAN NOT NULL,
			executed BOOLEAN NOT NULL,
			error_text TEXT NOT NULL,
			INDEX idx_triage_audit_run (run_id)
		)`,
	},
}

var upsertMeta = map[string]string{
	DialectSQLite: `INSERT INTO triage_meta (meta_key, meta_value) VALUES (?, ?)
		ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
	DialectMySQL: `INSERT INTO triage_meta (meta_key, meta_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`,
}

const insertAudit = `INSERT INTO triage_audit (
		recorded_at, run_id, message_id, action, decided_by, rule,
		reason, subject, sender, dry_run, executed, error_text
	) VALUES (
		:recorded_at, :run_id, :message_id, :action, :decided_by, :rule,
		:reason, :subject, :sender, :dry_run, :executed, :error_text
	)`

// SQLStore is a SQL implementation of core.AuditStore shared by the SQLite
// and MySQL backends
type SQLStore struct {
	db      *sqlx.DB
	dialect string
	logger  *zap.Logger
	now     func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at path
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(DialectSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store, err := NewSQLStore(db, DialectSQLite, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStore connects to MySQL. The DSN needs parseTime=true.
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Open(DialectMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store, err := NewSQLStore(db, DialectMySQL, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and creates the schema
func NewSQLStore(db *sqlx.DB, dialect string, logger *zap.Logger) (*SQLStore, error) {
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("unsupported audit dialect: %s", dialect)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStore{db: db, dialect: dialect, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	for i, stmt := range schemas[s.dialect] {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply audit schema step %d: %w", i+1, err)
		}
	}
	return nil
}

// Append implements core.AuditStore. All decisions of a run are written in
// one transaction.
func (s *SQLStore) Append(ctx context.Context, runID string, dryRun bool, decisions []core.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	at := s.now().UTC()
	for _, d := range decisions {
		if _, err := tx.NamedExecContext(ctx, insertAudit, NewRecord(runID, dryRun, at, d)); err != nil {
			return fmt.Errorf("failed to insert audit record for %s: %w", d.Message.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit records: %w", err)
	}

	s.logger.Debug("Appended audit records",
		zap.String("run_id", runID),
		zap.Int("count", len(decisions)))
	return nil
}

// Watermark implements core.AuditStore
func (s *SQLStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	var values []string
	err := s.db.SelectContext(ctx, &values,
		"SELECT meta_value FROM triage_meta WHERE meta_key = ?", watermarkKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, values[0])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark %q: %w", values[0], err)
	}
	return t, true, nil
}

// SetWatermark implements core.AuditStore
func (s *SQLStore) SetWatermark(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, upsertMeta[s.dialect], watermarkKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store watermark: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []Record
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, recorded_at, run_id, message_id, action, decided_by, rule,
			reason, subject, sender, dry_run, executed, error_text
		FROM triage_audit
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
