package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Default thresholds and labels
const (
	DefaultLowConfidence   = 0.5
	DefaultHighConfidence  = 0.85
	DefaultQuarantineLabel = "ToReview"
	CategoryLabelPrefix    = "Triage/"
)

// ResolverConfig holds the values the resolver needs to map a
// classification onto an action
type ResolverConfig struct {
	LowConfidence   float64
	HighConfidence  float64
	QuarantineLabel string
	// JunkAction caps every TRASH decision, e.g. "label" sends would-be
	// trash to the quarantine label instead
	JunkAction Action
}

// DefaultResolverConfig returns the stock thresholds
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		LowConfidence:   DefaultLowConfidence,
		HighConfidence:  DefaultHighConfidence,
		QuarantineLabel: DefaultQuarantineLabel,
		JunkAction:      ActionTrash,
	}
}

// CategoryLabel is the label a classifier LABEL decision applies
func CategoryLabel(c Category) string {
	return CategoryLabelPrefix + string(c)
}

// ResolveClassification maps a classification to a decision. Only a
// high-confidence classification may produce TRASH.
func ResolveClassification(msg MessageSummary, cls Classification, cfg ResolverConfig) Decision {
	d := Decision{
		Message:    msg,
		By:         ByLLM,
		Rule:       "classifier",
		Confidence: cls.Confidence,
	}

	lowConfidence := cls.IsNoOpinion() || cls.Confidence < cfg.LowConfidence

	switch {
	case lowConfidence:
		d.Action = LeastDestructive(ActionArchive, cls.SuggestedAction)
		d.Reason = "low confidence, conservative default"
	case cls.Confidence < cfg.HighConfidence && cls.SuggestedAction == ActionTrash:
		d.Action = ActionLabel
		d.LabelsToAdd = []string{cfg.QuarantineLabel}
		d.Reason = "medium confidence, quarantined for review"
	default:
		d.Action = cls.SuggestedAction
		d.Reason = fmt.Sprintf("classified as %s (confidence %.2f)", cls.Category, cls.Confidence)
	}

	if d.Action == ActionLabel && len(d.LabelsToAdd) == 0 {
		d.LabelsToAdd = []string{CategoryLabel(cls.Category)}
	}
	if cls.Rationale != "" && !lowConfidence {
		d.Reason += ": " + cls.Rationale
	}
	return d
}

// ClassifierStrategy is the last link of the chain and is always decisive
type ClassifierStrategy struct {
	classifier Classifier
	cfg        ResolverConfig
}

// NewClassifierStrategy creates a new classifier strategy
func NewClassifierStrategy(classifier Classifier, cfg ResolverConfig) *ClassifierStrategy {
	return &ClassifierStrategy{classifier: classifier, cfg: cfg}
}

// Name implements Strategy
func (s *ClassifierStrategy) Name() string { return "classifier" }

// Decide implements Strategy
func (s *ClassifierStrategy) Decide(ctx context.Context, msg MessageSummary) Verdict {
	return Decisive(ResolveClassification(msg, s.classifier.Classify(ctx, msg), s.cfg))
}

// Resolver walks the strategy chain and applies the final safety checks
type Resolver struct {
	strategies []Strategy
	protect    func(MessageSummary) bool
	cfg        ResolverConfig
	logger     *zap.Logger
}

// NewResolver creates a new resolver. protect is re-evaluated on every final
// decision; a nil protect treats nothing as protected.
func NewResolver(strategies []Strategy, protect func(MessageSummary) bool, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if protect == nil {
		protect = func(MessageSummary) bool { return false }
	}
	if cfg.QuarantineLabel == "" {
		cfg.QuarantineLabel = DefaultQuarantineLabel
	}
	if !cfg.JunkAction.Valid() {
		cfg.JunkAction = ActionTrash
	}
	return &Resolver{strategies: strategies, protect: protect, cfg: cfg, logger: logger}
}

// Decide returns the final decision for msg. Strategies after the first
// decisive one are never consulted.
func (r *Resolver) Decide(ctx context.Context, msg MessageSummary) Decision {
	for _, s := range r.strategies {
		if d, ok := s.Decide(ctx, msg).Decision(); ok {
			return r.finish(msg, d)
		}
	}
	return r.finish(msg, Decision{
		Message: msg,
		Action:  ActionKeep,
		Reason:  "no strategy reached a decision",
		By:      ByPolicy,
		Rule:    "default",
	})
}

func (r *Resolver) finish(msg MessageSummary, d Decision) Decision {
	d.Message = msg

	if d.Action != ActionKeep && r.protect(msg) {
		r.logger.Warn("Protected message reached a mutating decision, keeping",
			zap.String("message_id", msg.ID),
			zap.String("action", string(d.Action)),
			zap.String("rule", d.Rule))
		d.Action = ActionKeep
		d.LabelsToAdd = nil
		d.Reason = "protected message"
		d.Rule = "safety"
		d.By = ByPolicy
	}

	if d.Action == ActionTrash && r.cfg.JunkAction != ActionTrash {
		d.Action = r.cfg.JunkAction
		if d.Action == ActionLabel {
			d.LabelsToAdd = []string{r.cfg.QuarantineLabel}
		}
		d.Reason += " (quarantined)"
	}

	if d.Action != ActionLabel {
		d.LabelsToAdd = nil
	}
	if strings.TrimSpace(d.Reason) == "" {
		d.Reason = fmt.Sprintf("%s by %s", d.Action, d.By)
	}
	return d
}
