// Package policy implements the deterministic rule layer that runs before
// any classifier is consulted.
//
// Rules run in a fixed order and the first match wins:
//
//	safety veto > denylist > heuristic archive > custom rules > undecided
package policy

import (
	"context"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/safety"
	"go.uber.org/zap"
)

// Config holds the policy rule inputs
type Config struct {
	DenylistSenders   []string
	DenylistDomains   []string
	NewsletterSenders []string
	SpamSubjects      []string
	Rules             []RuleConfig
}

// rule is one deterministic check. It must not have side effects.
type rule struct {
	name  string
	check func(msg core.MessageSummary, sender string) (core.Decision, bool)
}

// Engine evaluates the ordered rule list
type Engine struct {
	gate   *safety.Gate
	rules  []rule
	logger *zap.Logger
}

// NewEngine builds the rule chain. Invalid custom rules are reported as a
// configuration error.
func NewEngine(gate *safety.Gate, cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{gate: gate, logger: logger}

	deny := safety.NewAddressSet(cfg.DenylistSenders, cfg.DenylistDomains)
	h := newHeuristics(cfg.NewsletterSenders, cfg.SpamSubjects)

	e.rules = []rule{
		{name: "safety", check: e.safetyVeto},
		{name: "denylist", check: func(msg core.MessageSummary, sender string) (core.Decision, bool) {
			if matched, _ := deny.Match(sender); matched {
				return core.Decision{Action: core.ActionTrash, Reason: "denylisted sender"}, true
			}
			return core.Decision{}, false
		}},
		{name: "newsletter", check: func(msg core.MessageSummary, sender string) (core.Decision, bool) {
			if h.isNewsletter(msg, sender) {
				return core.Decision{Action: core.ActionArchive, Reason: "newsletter pattern"}, true
			}
			return core.Decision{}, false
		}},
		{name: "spam-subject", check: func(msg core.MessageSummary, sender string) (core.Decision, bool) {
			if h.isSpammySubject(msg) {
				return core.Decision{Action: core.ActionArchive, Reason: "spammy subject (conservative)"}, true
			}
			return core.Decision{}, false
		}},
	}

	custom, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	for _, cr := range custom {
		cr := cr
		e.rules = append(e.rules, rule{name: "custom:" + cr.name, check: func(msg core.MessageSummary, sender string) (core.Decision, bool) {
			return cr.evaluate(msg, sender, logger)
		}})
	}

	logger.Info("Initialized policy engine",
		zap.Int("denylist_entries", len(cfg.DenylistSenders)+len(cfg.DenylistDomains)),
		zap.Int("custom_rules", len(custom)))

	return e, nil
}

// Name implements core.Strategy
func (e *Engine) Name() string { return "policy" }

// Decide implements core.Strategy. It never calls external services.
func (e *Engine) Decide(_ context.Context, msg core.MessageSummary) core.Verdict {
	sender, _ := safety.NormalizeAddress(msg.From)

	for _, r := range e.rules {
		d, ok := r.check(msg, sender)
		if !ok {
			continue
		}
		d.Message = msg
		d.By = core.ByPolicy
		d.Rule = r.name
		e.logger.Debug("Policy rule matched",
			zap.String("message_id", msg.ID),
			zap.String("rule", r.name),
			zap.String("action", string(d.Action)))
		return core.Decisive(d)
	}

	return core.Undecided()
}

func (e *Engine) safetyVeto(msg core.MessageSummary, _ string) (core.Decision, bool) {
	res := e.gate.Check(msg)
	if !res.Protected {
		return core.Decision{}, false
	}
	return core.Decision{Action: core.ActionKeep, Reason: res.Reason}, true
}
