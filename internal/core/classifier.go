package core

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Classifier outcomes reported to the RunObserver
const (
	OutcomeOK          = "ok"
	OutcomeCacheHit    = "cache_hit"
	OutcomeTimeout     = "timeout"
	OutcomeMalformed   = "malformed"
	OutcomeQuota       = "quota"
	OutcomeUnavailable = "unavailable"
)

const previewChars = 300

// Classifier turns a message into a normalized classification. It never
// fails: any problem yields the unknown sentinel.
type Classifier interface {
	Classify(ctx context.Context, msg MessageSummary) Classification
}

// ClassifierConfig tunes the classifier adapter
type ClassifierConfig struct {
	Timeout      time.Duration
	MaxBodyChars int
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ClassifierAdapter wraps an LLMClient with caching, rate limiting, a
// per-call timeout and output normalization
type ClassifierAdapter struct {
	client   LLMClient
	cache    CacheRepository
	limiter  *rate.Limiter
	text     *utils.TextProcessor
	observer RunObserver
	logger   *zap.Logger
	cfg      ClassifierConfig
}

// NewClassifierAdapter creates a new classifier adapter. cache and limiter
// may be nil.
func NewClassifierAdapter(
	client LLMClient,
	cache CacheRepository,
	limiter *rate.Limiter,
	text *utils.TextProcessor,
	observer RunObserver,
	logger *zap.Logger,
	cfg ClassifierConfig,
) *ClassifierAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &ClassifierAdapter{
		client:   client,
		cache:    cache,
		limiter:  limiter,
		text:     text,
		observer: observer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Classify implements Classifier
func (c *ClassifierAdapter) Classify(ctx context.Context, msg MessageSummary) Classification {
	if c.cfg.CacheEnabled && c.cache != nil && msg.ID != "" {
		if entry, err := c.cache.Get(ctx, msg.ID); err == nil {
			c.logger.Debug("Cache hit for message", zap.String("message_id", msg.ID))
			c.observer.ObserveClassifier(OutcomeCacheHit)
			return entry.Classification
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fallback(msg, OutcomeUnavailable, err)
		}
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	res, err := c.client.ClassifyEmail(callCtx, c.PromptFor(msg))
	if err != nil {
		return c.fallback(msg, classifierOutcome(err), err)
	}
	if res == nil {
		return c.fallback(msg, OutcomeMalformed, errors.New("empty classification"))
	}

	cls := NormalizeClassification(*res)
	c.observer.ObserveClassifier(OutcomeOK)
	c.logger.Debug("Message classified",
		zap.String("message_id", msg.ID),
		zap.String("category", string(cls.Category)),
		zap.Float64("confidence", cls.Confidence),
		zap.String("suggested_action", string(cls.SuggestedAction)))

	if c.cfg.CacheEnabled && c.cache != nil && msg.ID != "" {
		now := time.Now()
		entry := &CacheEntry{
			MessageID:      msg.ID,
			Classification: cls,
			StoredAt:       now,
			ExpiresAt:      now.Add(c.cfg.CacheTTL),
		}
		if err := c.cache.Set(ctx, entry); err != nil {
			c.logger.Error("Failed to update cache", zap.Error(err))
		}
	}

	return cls
}

// PromptFor builds the only view of msg the model receives
func (c *ClassifierAdapter) PromptFor(msg MessageSummary) PromptContext {
	preview, _ := c.text.ProcessText(utils.CollapseWhitespace(msg.Snippet), previewChars)

	body := msg.Body
	if body == "" {
		body = msg.Snippet
	}
	body, truncated := c.text.ProcessText(body, c.cfg.MaxBodyChars)

	return PromptContext{
		From:      c.text.SanitizeUTF8(msg.From),
		Subject:   c.text.SanitizeUTF8(msg.Subject),
		Preview:   preview,
		Body:      body,
		Truncated: truncated,
	}
}

func (c *ClassifierAdapter) fallback(msg MessageSummary, outcome string, err error) Classification {
	c.logger.Warn("Classifier unavailable, treating as no opinion",
		zap.String("message_id", msg.ID),
		zap.String("outcome", outcome),
		zap.Error(err))
	c.observer.ObserveClassifier(outcome)
	return UnknownClassification(outcome)
}

func classifierOutcome(err error) string {
	var ce *ClassifierError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeUnavailable
}

// NormalizeClassification clamps and repairs raw model output
func NormalizeClassification(raw Classification) Classification {
	cls := raw
	cls.Category = ParseCategory(string(raw.Category))

	switch {
	case math.IsNaN(raw.Confidence) || raw.Confidence < 0:
		cls.Confidence = 0
	case raw.Confidence > 1:
		cls.Confidence = 1
	}

	action, ok := ParseAction(string(raw.SuggestedAction))
	if !ok {
		action = cls.Category.DefaultAction()
	}
	cls.SuggestedAction = action

	return cls
}
