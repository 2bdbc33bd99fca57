package core

import (
	"context"
	"time"
)

// PromptContext is everything the classifier is allowed to see about a
// message. Attachments and thread history are never included.
type PromptContext struct {
	From      string
	Subject   string
	Preview   string
	Body      string
	Truncated bool
}

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// ClassifyEmail asks the model for a category, confidence and suggested action
	ClassifyEmail(ctx context.Context, prompt PromptContext) (*Classification, error)
}

// Mutation is a single reversible change to a message
type Mutation struct {
	AddLabels    []string
	RemoveLabels []string
	Trash        bool
}

// Empty reports whether the mutation would change nothing
func (m Mutation) Empty() bool {
	return len(m.AddLabels) == 0 && len(m.RemoveLabels) == 0 && !m.Trash
}

// Mailbox is the message source the engine reads from and acts on
type Mailbox interface {
	// ListCandidateIDs returns at most limit message IDs received at or
	// after since, oldest first
	ListCandidateIDs(ctx context.Context, since time.Time, limit int) ([]string, error)

	// Fetch returns the summary of a single message
	Fetch(ctx context.Context, id string) (MessageSummary, error)

	// Apply performs a mutation; repeating an applied mutation is a no-op
	Apply(ctx context.Context, id string, m Mutation) error
}

// AuditStore persists decisions and the last-processed watermark
type AuditStore interface {
	// Append writes decisions to the audit trail
	Append(ctx context.Context, runID string, dryRun bool, decisions []Decision) error

	// Watermark returns the last processed point, ok is false if none was stored
	Watermark(ctx context.Context) (t time.Time, ok bool, err error)

	// SetWatermark stores the last processed point
	SetWatermark(ctx context.Context, t time.Time) error
}

// ReportSink receives finalized run reports
type ReportSink interface {
	Deliver(ctx context.Context, report RunReport) error
}

// CacheRepository defines the interface for caching classifications
type CacheRepository interface {
	// Get retrieves a cached entry for a message
	Get(ctx context.Context, messageID string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, messageID string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// RunObserver is notified of engine events, typically for metrics
type RunObserver interface {
	ObserveDecision(d Decision)
	ObserveClassifier(outcome string)
	ObserveError(kind string)
	ObserveRun(report RunReport, err error)
}

// Strategy is one link of the decision chain
type Strategy interface {
	Name() string
	Decide(ctx context.Context, msg MessageSummary) Verdict
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(Decision) {}
func (nopObserver) ObserveClassifier(string) {}
func (nopObserver) ObserveError(string) {}
func (nopObserver) ObserveRun(RunReport, error) {}

// NopObserver discards all events
var NopObserver RunObserver = nopObserver{}
