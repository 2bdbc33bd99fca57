package policy

import (
	"context"
	"testing"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, rules ...RuleConfig) *Engine {
	t.Helper()
	gate := safety.NewGate(safety.Rules{
		WhitelistSenders: []string{"alerts@bank.com"},
		WhitelistDomains: []string{"family.net"},
		ProtectedLabels:  []string{core.LabelStarred, core.LabelImportant},
	}, nil)

	e, err := NewEngine(gate, Config{
		DenylistSenders:   []string{"spammer@bad.biz"},
		DenylistDomains:   []string{"junkmail.example", "family.net"},
		NewsletterSenders: DefaultNewsletterSenders,
		SpamSubjects:      DefaultSpamSubjects,
		Rules:             rules,
	}, nil)
	require.NoError(t, err)
	return e
}

func TestEngineDecide(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name     string
		msg      core.MessageSummary
		decisive bool
		action   core.Action
		rule     string
		reason   string
	}{
		{
			name:     "whitelisted sender is kept",
			msg:      core.MessageSummary{ID: "1", From: "alerts@bank.com", Subject: "Your statement"},
			decisive: true, action: core.ActionKeep, rule: "safety", reason: "whitelisted sender",
		},
		{
			name:     "protection beats denylist",
			msg:      core.MessageSummary{ID: "2", From: "cousin@family.net", Subject: "WIN MONEY now"},
			decisive: true, action: core.ActionKeep, rule: "safety", reason: "whitelisted domain",
		},
		{
			name:     "starred message is kept",
			msg:      core.MessageSummary{ID: "3", From: "spammer@bad.biz", Labels: []string{"STARRED"}},
			decisive: true, action: core.ActionKeep, rule: "safety", reason: "protected label",
		},
		{
			name:     "denylisted sender is trashed",
			msg:      core.MessageSummary{ID: "4", From: "Spammer <spammer@bad.biz>", Subject: "hello"},
			decisive: true, action: core.ActionTrash, rule: "denylist", reason: "denylisted sender",
		},
		{
			name:     "denylisted subdomain is trashed",
			msg:      core.MessageSummary{ID: "5", From: "x@mx.junkmail.example"},
			decisive: true, action: core.ActionTrash, rule: "denylist", reason: "denylisted sender",
		},
		{
			name:     "list-unsubscribe header archives",
			msg:      core.MessageSummary{ID: "6", From: "shop@store.com", Headers: map[string]string{"List-Unsubscribe": "<mailto:u@store.com>"}},
			decisive: true, action: core.ActionArchive, rule: "newsletter", reason: "newsletter pattern",
		},
		{
			name:     "bulk precedence archives",
			msg:      core.MessageSummary{ID: "7", From: "x@list.org", Headers: map[string]string{"Precedence": "Bulk"}},
			decisive: true, action: core.ActionArchive, rule: "newsletter", reason: "newsletter pattern",
		},
		{
			name:     "newsletter sender archives",
			msg:      core.MessageSummary{ID: "8", From: "Newsletter@news.site.com", Subject: "This week"},
			decisive: true, action: core.ActionArchive, rule: "newsletter", reason: "newsletter pattern",
		},
		{
			name:     "spammy subject archives conservatively",
			msg:      core.MessageSummary{ID: "9", From: "promo@unknown.io", Subject: "Urgent action required on your account"},
			decisive: true, action: core.ActionArchive, rule: "spam-subject", reason: "spammy subject (conservative)",
		},
		{
			name: "ordinary mail is undecided",
			msg:  core.MessageSummary{ID: "10", From: "friend@gmail.com", Subject: "lunch?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := e.Decide(context.Background(), tt.msg).Decision()
			require.Equal(t, tt.decisive, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.rule, d.Rule)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, core.ByPolicy, d.By)
			assert.Equal(t, tt.msg.ID, d.Message.ID)
		})
	}
}

func TestEngineCustomRules(t *testing.T) {
	e := newTestEngine(t,
		RuleConfig{
			Name:   "ci-noise",
			When:   `domain == "github.com" && subject.contains("[ci]")`,
			Action: "label",
			Labels: []string{"CI"},
		},
		RuleConfig{
			Name:   "old-vendor",
			When:   `"vendor-a" in headers && headers["vendor-a"] == "yes"`,
			Action: "trash",
		},
	)

	d, ok := e.Decide(context.Background(), core.MessageSummary{
		ID: "1", From: "noreply@github.com", Subject: "[ci] build failed",
	}).Decision()
	require.True(t, ok)
	assert.Equal(t, core.ActionLabel, d.Action)
	assert.Equal(t, []string{"CI"}, d.LabelsToAdd)
	assert.Equal(t, "custom:ci-noise", d.Rule)
	assert.Equal(t, "rule ci-noise", d.Reason)

	d, ok = e.Decide(context.Background(), core.MessageSummary{
		ID: "2", From: "x@vendor.com", Headers: map[string]string{"vendor-a": "yes"},
	}).Decision()
	require.True(t, ok)
	assert.Equal(t, core.ActionTrash, d.Action)

	_, ok = e.Decide(context.Background(), core.MessageSummary{
		ID: "3", From: "noreply@github.com", Subject: "PR merged",
	}).Decision()
	assert.False(t, ok)
}

func TestEngineRejectsInvalidRules(t *testing.T) {
	gate := safety.NewGate(safety.Rules{}, nil)

	tests := []struct {
		name string
		rule RuleConfig
	}{
		{name: "missing name", rule: RuleConfig{When: "true", Action: "keep"}},
		{name: "unknown action", rule: RuleConfig{Name: "r", When: "true", Action: "delete"}},
		{name: "label without labels", rule: RuleConfig{Name: "r", When: "true", Action: "label"}},
		{name: "bad expression", rule: RuleConfig{Name: "r", When: "subject ==", Action: "keep"}},
		{name: "unknown variable", rule: RuleConfig{Name: "r", When: "attachment == 1", Action: "keep"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(gate, Config{Rules: []RuleConfig{tt.rule}}, nil)
			require.Error(t, err)
			var cfgErr *core.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
