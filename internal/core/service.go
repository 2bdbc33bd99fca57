package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceConfig holds the run-level settings
type ServiceConfig struct {
	DryRun      bool
	MaxMessages int
	// FetchWindow is how far back the first run looks when no watermark exists
	FetchWindow time.Duration
	ExampleCap  int
	Now         func() time.Time
}

// TriageService runs one triage pass over the mailbox
type TriageService struct {
	mailbox  Mailbox
	resolver *Resolver
	executor *Executor
	store    AuditStore
	sinks    []ReportSink
	observer RunObserver
	logger   *zap.Logger
	cfg      ServiceConfig
}

// NewTriageService creates a new triage service
func NewTriageService(
	mailbox Mailbox,
	resolver *Resolver,
	executor *Executor,
	store AuditStore,
	sinks []ReportSink,
	observer RunObserver,
	logger *zap.Logger,
	cfg ServiceConfig,
) *TriageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ExampleCap == 0 {
		cfg.ExampleCap = DefaultExampleCap
	}
	return &TriageService{
		mailbox:  mailbox,
		resolver: resolver,
		executor: executor,
		store:    store,
		sinks:    sinks,
		observer: observer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run processes up to MaxMessages candidates, oldest first. Per-message
// failures are recorded in the report; the returned error is only set for
// failures that invalidate the whole run, in which case the watermark is
// left untouched.
func (s *TriageService) Run(ctx context.Context) (RunReport, error) {
	runID := uuid.NewString()
	started := s.cfg.Now()
	logger := s.logger.With(zap.String("run_id", runID))

	acc := NewAccumulator(runID, started, s.cfg.DryRun, s.cfg.ExampleCap, s.store, logger)

	logger.Info("Starting triage run",
		zap.Bool("dry_run", s.cfg.DryRun),
		zap.Int("max_messages", s.cfg.MaxMessages))

	fatal := s.process(ctx, acc, started, logger)

	report, err := acc.Finalize(ctx, s.cfg.Now(), fatal)
	if err == nil {
		s.deliver(ctx, report, logger)
	}
	s.observer.ObserveRun(report, err)

	logger.Info("Triage run finished",
		zap.Int("total", report.Total()),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration()),
		zap.Error(err))

	return report, err
}

func (s *TriageService) process(ctx context.Context, acc *Accumulator, started time.Time, logger *zap.Logger) error {
	since, err := s.since(ctx, started)
	if err != nil {
		s.observer.ObserveError("watermark")
		return err
	}

	ids, err := s.mailbox.ListCandidateIDs(ctx, since, s.cfg.MaxMessages)
	if err != nil {
		s.observer.ObserveError("list")
		return fmt.Errorf("failed to list candidate messages: %w", err)
	}
	if s.cfg.MaxMessages > 0 && len(ids) > s.cfg.MaxMessages {
		ids = ids[:s.cfg.MaxMessages]
	}

	logger.Info("Listed candidate messages",
		zap.Time("since", since),
		zap.Int("count", len(ids)))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}

		msg, err := s.executor.Fetch(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("run cancelled: %w", ctxErr)
			}
			logger.Error("Failed to fetch message", zap.String("message_id", id), zap.Error(err))
			s.observer.ObserveError("fetch")
			if IsTransient(err) {
				acc.HoldWatermark()
			}
			acc.RecordError(fmt.Sprintf("%s: fetch: %v", id, err))
			continue
		}
		if msg.ID == "" {
			msg.ID = id
		}

		d := s.resolver.Decide(ctx, msg)

		if !s.cfg.DryRun {
			if err := s.executor.Execute(ctx, d); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return fmt.Errorf("run cancelled: %w", ctx.Err())
				}
				logger.Error("Failed to execute decision",
					zap.String("message_id", msg.ID),
					zap.String("action", string(d.Action)),
					zap.Error(err))
				s.observer.ObserveError("execute")
				if IsTransient(err) {
					acc.HoldWatermark()
				}
				d.Error = err.Error()
			} else {
				d.Executed = true
			}
		}

		logger.Debug("Message decided",
			zap.String("message_id", msg.ID),
			zap.String("action", string(d.Action)),
			zap.String("by", string(d.By)),
			zap.String("rule", d.Rule),
			zap.String("reason", d.Reason))

		acc.Record(d)
		s.observer.ObserveDecision(d)
	}

	return nil
}

// since returns the lower bound for candidate listing. The watermark is
// inclusive so a message sharing the last processed timestamp is never
// skipped; reprocessing it is a no-op.
func (s *TriageService) since(ctx context.Context, now time.Time) (time.Time, error) {
	if s.store != nil {
		wm, ok, err := s.store.Watermark(ctx)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
		}
		if ok {
			return wm, nil
		}
	}
	if s.cfg.FetchWindow > 0 {
		return now.Add(-s.cfg.FetchWindow), nil
	}
	return time.Time{}, nil
}

func (s *TriageService) deliver(ctx context.Context, report RunReport, logger *zap.Logger) {
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, report); err != nil {
			logger.Error("Failed to deliver run report", zap.Error(err))
			s.observer.ObserveError("report")
		}
	}
}
