// Package safety decides whether a message must never be modified.
//
// The gate is the last line of defense against destructive mistakes, so it
// is pure, performs no I/O and fails closed: anything it cannot verify is
// reported as protected.
package safety

import (
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Rules configures the gate
type Rules struct {
	WhitelistSenders []string
	WhitelistDomains []string
	ProtectedLabels  []string
}

// Result explains a gate evaluation
type Result struct {
	Protected bool
	Reason    string
}

// Gate checks messages against whitelists and protected labels
type Gate struct {
	whitelist AddressSet
	labels    map[string]struct{}
	logger    *zap.Logger
}

// NewGate creates a new safety gate
func NewGate(rules Rules, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}

	labels := make(map[string]struct{}, len(rules.ProtectedLabels))
	for _, l := range rules.ProtectedLabels {
		labels[cases.Fold().String(l)] = struct{}{}
	}

	g := &Gate{
		whitelist: NewAddressSet(rules.WhitelistSenders, rules.WhitelistDomains),
		labels:    labels,
		logger:    logger,
	}

	logger.Info("Initialized safety gate",
		zap.Int("whitelist_senders", len(g.whitelist.addresses)),
		zap.Int("whitelist_domains", len(g.whitelist.domains)),
		zap.Strings("protected_labels", rules.ProtectedLabels))

	return g
}

// Evaluate returns true when the message must not be modified
func (g *Gate) Evaluate(msg core.MessageSummary) bool {
	return g.Check(msg).Protected
}

// Check evaluates the message and reports why it is protected
func (g *Gate) Check(msg core.MessageSummary) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Safety check panicked, protecting message",
				zap.String("message_id", msg.ID),
				zap.String("panic", fmt.Sprint(r)))
			res = Result{Protected: true, Reason: "safety check failed"}
		}
	}()

	if msg.ID == "" {
		return Result{Protected: true, Reason: "message without id"}
	}

	for _, l := range msg.Labels {
		if _, ok := g.labels[cases.Fold().String(l)]; ok {
			return Result{Protected: true, Reason: "protected label"}
		}
	}

	sender, ok := NormalizeAddress(msg.From)
	if !ok {
		return Result{Protected: true, Reason: "unverifiable sender"}
	}

	if matched, kind := g.whitelist.Match(sender); matched {
		g.logger.Debug("Sender is whitelisted",
			zap.String("message_id", msg.ID),
			zap.String("sender", sender),
			zap.String("match", kind))
		return Result{Protected: true, Reason: "whitelisted " + kind}
	}

	return Result{}
}
