package policy

import (
	"strings"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/safety"
)

// DefaultNewsletterSenders are local parts that almost always belong to bulk mail
var DefaultNewsletterSenders = []string{"newsletter", "newsletters", "digest", "weekly"}

// DefaultSpamSubjects are subject fragments that only ever show up in junk
var DefaultSpamSubjects = []string{"win money", "free!!!", "urgent action required", "loan approved"}

type heuristics struct {
	newsletterLocals map[string]struct{}
	spamSubjects     []string
}

func newHeuristics(newsletterSenders, spamSubjects []string) heuristics {
	h := heuristics{newsletterLocals: make(map[string]struct{}, len(newsletterSenders))}
	for _, s := range newsletterSenders {
		h.newsletterLocals[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, s := range spamSubjects {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			h.spamSubjects = append(h.spamSubjects, s)
		}
	}
	return h
}

// isNewsletter looks for mailing-list signals: list headers, bulk
// precedence, an unsubscribe header echoed in the preview, or a
// newsletter-style sender.
func (h heuristics) isNewsletter(msg core.MessageSummary, sender string) bool {
	if msg.Header("List-Unsubscribe") != "" || msg.Header("List-Id") != "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(msg.Header("Precedence"))) {
	case "bulk", "list":
		return true
	}
	if strings.Contains(strings.ToLower(msg.Snippet), "list-unsubscribe") {
		return true
	}
	if sender != "" {
		if _, ok := h.newsletterLocals[safety.LocalPartOf(sender)]; ok {
			return true
		}
	}
	return false
}

func (h heuristics) isSpammySubject(msg core.MessageSummary) bool {
	subject := strings.ToLower(msg.Subject)
	for _, k := range h.spamSubjects {
		if strings.Contains(subject, k) {
			return true
		}
	}
	return false
}
