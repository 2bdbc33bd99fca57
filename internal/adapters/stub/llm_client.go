// Package stub provides deterministic LLM clients for tests and offline runs
package stub

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// KeywordRule maps any of its keywords to a fixed classification
type KeywordRule struct {
	Keywords       []string
	Classification core.Classification
}

// DefaultRules is a small rule set good enough for demos and dry runs
var DefaultRules = []KeywordRule{
	{
		Keywords:       []string{"lottery", "you won", "winner", "claim your prize", "crypto giveaway"},
		Classification: core.Classification{Category: core.CategorySpam, Confidence: 0.95, SuggestedAction: core.ActionTrash, Rationale: "prize or giveaway bait"},
	},
	{
		Keywords:       []string{"receipt", "invoice", "order confirmation", "your order"},
		Classification: core.Classification{Category: core.CategoryReceipt, Confidence: 0.9, SuggestedAction: core.ActionLabel, Rationale: "transactional"},
	},
	{
		Keywords:       []string{"% off", "sale", "limited time", "deal"},
		Classification: core.Classification{Category: core.CategoryPromo, Confidence: 0.8, SuggestedAction: core.ActionArchive, Rationale: "marketing"},
	},
	{
		Keywords:       []string{"unsubscribe", "weekly digest", "newsletter"},
		Classification: core.Classification{Category: core.CategoryNewsletter, Confidence: 0.85, SuggestedAction: core.ActionArchive, Rationale: "bulk mail"},
	},
}

// KeywordClient classifies by case-insensitive keyword matching on the
// subject, preview and body. The first matching rule wins.
type KeywordClient struct {
	rules    []KeywordRule
	fallback core.Classification
	calls    atomic.Int64
}

// NewKeywordClient creates a new keyword client. With no rules,
// DefaultRules are used.
func NewKeywordClient(rules ...KeywordRule) *KeywordClient {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &KeywordClient{
		rules: rules,
		fallback: core.Classification{
			Category:        core.CategoryPersonal,
			Confidence:      0.6,
			SuggestedAction: core.ActionKeep,
			Rationale:       "no junk signal",
		},
	}
}

// ClassifyEmail implements core.LLMClient
func (c *KeywordClient) ClassifyEmail(ctx context.Context, p core.PromptContext) (*core.Classification, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.ToLower(p.Subject + "\n" + p.Preview + "\n" + p.Body)
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, strings.ToLower(k)) {
				cls := r.Classification
				cls.Model = "stub"
				return &cls, nil
			}
		}
	}

	cls := c.fallback
	cls.Model = "stub"
	return &cls, nil
}

// Calls returns how many classifications were requested
func (c *KeywordClient) Calls() int {
	return int(c.calls.Load())
}

// Func adapts a function to core.LLMClient
type Func func(ctx context.Context, p core.PromptContext) (*core.Classification, error)

// ClassifyEmail implements core.LLMClient
func (f Func) ClassifyEmail(ctx context.Context, p core.PromptContext) (*core.Classification, error) {
	return f(ctx, p)
}

// Fixed returns a client that always answers cls and counts its calls
func Fixed(cls core.Classification, calls *atomic.Int64) core.LLMClient {
	return Func(func(ctx context.Context, _ core.PromptContext) (*core.Classification, error) {
		if calls != nil {
			calls.Add(1)
		}
		out := cls
		return &out, nil
	})
}

// Blocking returns a client that waits until its context is done, which
// simulates a classifier timeout
func Blocking() core.LLMClient {
	return Func(func(ctx context.Context, _ core.PromptContext) (*core.Classification, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}
