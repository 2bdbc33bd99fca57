package audit

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// MemoryStore keeps the audit trail in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	records   []Record
	watermark time.Time
	hasMark   bool
	now       func() time.Time
}

// NewMemoryStore creates a new in-memory audit store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Append implements core.AuditStore
func (s *MemoryStore) Append(ctx context.Context, runID string, dryRun bool, decisions []core.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	for _, d := range decisions {
		rec := NewRecord(runID, dryRun, at, d)
		rec.ID = int64(len(s.records) + 1)
		s.records = append(s.records, rec)
	}
	return nil
}

// Watermark implements core.AuditStore
func (s *MemoryStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, s.hasMark, nil
}

// SetWatermark implements core.AuditStore
func (s *MemoryStore) SetWatermark(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = t
	s.hasMark = true
	return nil
}

// Recent returns up to limit records, newest first
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close implements io.Closer
func (s *MemoryStore) Close() error {
	return nil
}
