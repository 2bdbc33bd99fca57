// Package audit provides core.AuditStore implementations
package audit

import (
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Record is one audited decision
type Record struct {
	ID         int64     `db:"id"`
	RecordedAt time.Time `db:"recorded_at"`
	RunID      string    `db:"run_id"`
	MessageID  string    `db:"message_id"`
	Action     string    `db:"action"`
	By         string    `db:"decided_by"`
	Rule       string    `db:"rule"`
	Reason     string    `db:"reason"`
	Subject    string    `db:"subject"`
	Sender     string    `db:"sender"`
	DryRun     bool      `db:"dry_run"`
	Executed   bool      `db:"executed"`
	Error      string    `db:"error_text"`
}

// NewRecord flattens a decision for storage
func NewRecord(runID string, dryRun bool, at time.Time, d core.Decision) Record {
	return Record{
		RecordedAt: at,
		RunID:      runID,
		MessageID:  d.Message.ID,
		Action:     string(d.Action),
		By:         string(d.By),
		Rule:       d.Rule,
		Reason:     d.Reason,
		Subject:    d.Message.Subject,
		Sender:     d.Message.From,
		DryRun:     dryRun,
		Executed:   d.Executed,
		Error:      d.Error,
	}
}
