package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultExampleCap bounds the example subjects kept per action
const DefaultExampleCap = 5

// Accumulator builds the RunReport one decision at a time. It is owned by
// the processing loop; the mutex only guards Finalize against a late
// concurrent caller.
type Accumulator struct {
	mu         sync.Mutex
	report     RunReport
	exampleCap int
	store      AuditStore
	logger     *zap.Logger
	watermark  time.Time
	held       bool
	finalized  bool
	finalErr   error
}

// NewAccumulator creates a new accumulator. store may be nil, in which case
// nothing is persisted.
func NewAccumulator(runID string, startedAt time.Time, dryRun bool, exampleCap int, store AuditStore, logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exampleCap < 0 {
		exampleCap = 0
	}
	counts := make(map[Action]int, len(Actions))
	for _, a := range Actions {
		counts[a] = 0
	}
	return &Accumulator{
		report: RunReport{
			RunID:     runID,
			StartedAt: startedAt,
			DryRun:    dryRun,
			Counts:    counts,
			Examples:  make(map[Action][]string, len(Actions)),
		},
		exampleCap: exampleCap,
		store:      store,
		logger:     logger,
	}
}

// Record adds one decision. Failed executions are still counted and also
// listed as errors.
func (a *Accumulator) Record(d Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}

	a.report.Counts[d.Action]++
	if len(a.report.Examples[d.Action]) < a.exampleCap {
		a.report.Examples[d.Action] = append(a.report.Examples[d.Action], exampleSubject(d.Message))
	}
	a.report.Decisions = append(a.report.Decisions, d)

	if d.Error != "" {
		a.report.Errors = append(a.report.Errors, fmt.Sprintf("%s: %s", d.Message.ID, d.Error))
	}
	if !a.held && d.Message.Date.After(a.watermark) {
		a.watermark = d.Message.Date
	}
}

// HoldWatermark freezes the watermark at the messages recorded so far.
// Candidates arrive oldest first, so a message that failed transiently
// stays at or after the stored watermark and is listed again next run.
func (a *Accumulator) HoldWatermark() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held = true
}

// RecordError adds a per-message error that produced no decision
func (a *Accumulator) RecordError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.report.Errors = append(a.report.Errors, msg)
}

// Finalize seals the report. When fatal is nil the decisions are appended
// to the audit trail and, outside dry-run, the watermark is advanced. Later
// calls return the first result unchanged.
func (a *Accumulator) Finalize(ctx context.Context, finishedAt time.Time, fatal error) (RunReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return a.snapshot(), a.finalErr
	}
	a.finalized = true
	a.report.FinishedAt = finishedAt

	if fatal != nil {
		a.logger.Error("Run aborted, watermark not advanced",
			zap.String("run_id", a.report.RunID),
			zap.Error(fatal))
		a.finalErr = fatal
		return a.snapshot(), a.finalErr
	}

	if a.store != nil {
		if err := a.store.Append(ctx, a.report.RunID, a.report.DryRun, a.report.Decisions); err != nil {
			a.finalErr = fmt.Errorf("failed to append audit trail: %w", err)
			return a.snapshot(), a.finalErr
		}
		if wm := a.nextWatermark(); !a.report.DryRun && !wm.IsZero() {
			if err := a.store.SetWatermark(ctx, wm); err != nil {
				a.finalErr = fmt.Errorf("failed to advance watermark: %w", err)
				return a.snapshot(), a.finalErr
			}
			a.report.Watermark = wm
		}
	}

	a.logger.Info("Run finalized",
		zap.String("run_id", a.report.RunID),
		zap.Int("total", a.report.Total()),
		zap.Int("errors", len(a.report.Errors)),
		zap.Bool("dry_run", a.report.DryRun))

	return a.snapshot(), nil
}

// nextWatermark never reaches past the start of the run; message dates
// may lie in the future.
func (a *Accumulator) nextWatermark() time.Time {
	if a.watermark.After(a.report.StartedAt) {
		return a.report.StartedAt
	}
	return a.watermark
}

// snapshot copies the report so callers cannot mutate accumulator state
func (a *Accumulator) snapshot() RunReport {
	r := a.report
	r.Counts = make(map[Action]int, len(a.report.Counts))
	for k, v := range a.report.Counts {
		r.Counts[k] = v
	}
	r.Examples = make(map[Action][]string, len(a.report.Examples))
	for k, v := range a.report.Examples {
		r.Examples[k] = append([]string(nil), v...)
	}
	r.Errors = append([]string(nil), a.report.Errors...)
	r.Decisions = append([]Decision(nil), a.report.Decisions...)
	return r
}

func exampleSubject(msg MessageSummary) string {
	if msg.Subject == "" {
		return "(no subject)"
	}
	return msg.Subject
}
