package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	require.NoError(t, cfg.Validate())

	s := cfg.Settings()
	assert.True(t, s.Mode.DryRun)
	assert.Equal(t, "trash", s.Mode.Action)
	assert.Equal(t, "ToReview", s.Mode.QuarantineLabel)
	assert.Equal(t, 500, s.Limits.MaxMessagesPerRun)
	assert.Equal(t, 24*time.Hour, s.Limits.FetchWindow)
	assert.Equal(t, 0.5, s.LLM.LowConfidence)
	assert.Equal(t, 0.85, s.LLM.HighConfidence)
	assert.Equal(t, []string{"STARRED", "IMPORTANT"}, s.Safety.ProtectedLabels)
	assert.Equal(t, "22:00", s.Schedule.Time)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{name: "unknown junk action", key: "mode.action", value: "delete", field: "mode.action"},
		{name: "zero message limit", key: "limits.max_messages_per_run", value: 0, field: "limits.maxmessagesperrun"},
		{name: "bad fetch window", key: "limits.fetch_window", value: "yesterday", field: "limits.fetchwindow"},
		{name: "low above high", key: "llm.low_confidence", value: 0.9, field: "llm.lowconfidence"},
		{name: "high above one", key: "llm.high_confidence", value: 1.5, field: "llm.highconfidence"},
		{name: "unknown provider", key: "llm.provider", value: "eliza", field: "llm.provider"},
		{name: "bad schedule", key: "schedule.time", value: "25:99", field: "schedule.time"},
		{name: "unknown store", key: "store.type", value: "postgres", field: "store.type"},
		{name: "zero example cap", key: "report.example_cap", value: 0, field: "report.examplecap"},
		{name: "imap without host", key: "mailbox.type", value: "imap", field: "imap.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewFromViper(NewEmptyViper())
			cfg.Set(tt.key, tt.value)

			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewReadsFileAndRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode:
  dry_run: false
  action: label
safety:
  whitelist_senders: ["alerts@bank.com"]
policy:
  rules:
    - name: ci
      when: 'domain == "github.com"'
      action: label
      labels: ["CI"]
`), 0o644))

	cfg, err := New(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.GetMode().DryRun)
	assert.Equal(t, "label", cfg.GetMode().Action)
	assert.Equal(t, []string{"alerts@bank.com"}, cfg.GetSafety().WhitelistSenders)

	rules := cfg.GetPolicy().Rules
	require.Len(t, rules, 1)
	assert.Equal(t, "ci", rules[0].Name)
	assert.Equal(t, []string{"CI"}, rules[0].Labels)
}

func TestNewMissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
