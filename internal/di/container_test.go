package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/factory"
)

func writeEML(t *testing.T, dir, id, from, subject, body string, date time.Time) {
	t.Helper()
	raw := fmt.Sprintf("From: %s\r\nTo: me@example.com\r\nSubject: %s\r\nDate: %s\r\nMessage-ID: <%s@example.com>\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, subject, date.Format(time.RFC1123Z), id, body)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".eml"), []byte(raw), 0o644))
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuildContainerRunsPipeline(t *testing.T) {
	dir := t.TempDir()
	mailDir := filepath.Join(dir, "mail")
	reportDir := filepath.Join(dir, "reports")
	require.NoError(t, os.MkdirAll(mailDir, 0o755))

	now := time.Now()
	writeEML(t, mailDir, "a1", "Lucky Draw <draw@prizes.example>", "Claim your prize", "You are the winner.", now.Add(-2*time.Hour))
	writeEML(t, mailDir, "a2", "Sam <sam@friends.example>", "Dinner tonight?", "Are you free at 7?", now.Add(-time.Hour))

	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
mode:
  dry_run: true
llm:
  provider: stub
  requests_per_minute: 0
mailbox:
  type: eml
eml:
  dir: %s
store:
  type: memory
report:
  save_dir: %s
logging:
  level: error
`, mailDir, reportDir))

	container, err := BuildContainer(cfgPath, nil)
	require.NoError(t, err)

	err = container.Invoke(func(svc *core.TriageService, store factory.AuditStore) {
		report, err := svc.Run(context.Background())
		require.NoError(t, err)

		assert.True(t, report.DryRun)
		assert.Equal(t, 2, report.Total())
		assert.Equal(t, 1, report.Counts[core.ActionTrash])
		assert.Equal(t, 1, report.Counts[core.ActionKeep])

		records, err := store.Recent(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, records, 2)

		_, ok, err := store.Watermark(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(reportDir, "*.md"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestBuildContainerOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mail"), 0o755))
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
llm:
  provider: stub
mailbox:
  type: eml
eml:
  dir: %s
store:
  type: memory
`, filepath.Join(dir, "mail")))

	container, err := BuildContainer(cfgPath, Overrides{"mode.dry_run": false, "mode.action": "label"})
	require.NoError(t, err)

	err = container.Invoke(func(sc core.ServiceConfig, rc core.ResolverConfig) {
		assert.False(t, sc.DryRun)
		assert.Equal(t, 500, sc.MaxMessages)
		assert.Equal(t, 24*time.Hour, sc.FetchWindow)
		assert.Equal(t, core.ActionLabel, rc.JunkAction)
		assert.Equal(t, "ToReview", rc.QuarantineLabel)
		assert.Equal(t, 0.85, rc.HighConfidence)
	})
	require.NoError(t, err)
}

func TestBuildContainerRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
llm:
  provider: stub
  low_confidence: 0.9
  high_confidence: 0.5
`)

	container, err := BuildContainer(cfgPath, nil)
	require.NoError(t, err)

	err = container.Invoke(func(*config.Config) {})
	require.Error(t, err)

	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, dig.RootCause(err), &cfgErr)
}

func TestBuildExplainContainer(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
llm:
  provider: openai
safety:
  whitelist_domains: [friends.example]
`)

	container, err := BuildExplainContainer(ExplainOptions{ConfigFile: cfgPath, Provider: "stub"})
	require.NoError(t, err)

	err = container.Invoke(func(r *core.Resolver) {
		spam := core.MessageSummary{ID: "x1", From: "draw@prizes.example", Subject: "You won the lottery"}
		d := r.Decide(context.Background(), spam)
		assert.Equal(t, core.ActionTrash, d.Action)
		assert.Equal(t, core.ByLLM, d.By)

		friend := core.MessageSummary{ID: "x2", From: "sam@friends.example", Subject: "You won the lottery"}
		d = r.Decide(context.Background(), friend)
		assert.Equal(t, core.ActionKeep, d.Action)
	})
	require.NoError(t, err)
}

func TestClassifierLimiter(t *testing.T) {
	assert.Nil(t, classifierLimiter(0))

	l := classifierLimiter(120)
	require.NotNil(t, l)
	assert.Equal(t, 500*time.Millisecond, time.Duration(float64(time.Second)/float64(l.Limit())))
	assert.Equal(t, 1, l.Burst())
}

func TestRetryConfig(t *testing.T) {
	rc := retryConfig(config.ExecutorConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		Timeout:        5 * time.Second,
	})
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, 2*time.Second, rc.InitialBackoff)
	assert.Equal(t, 10*time.Second, rc.MaxBackoff)
	assert.Equal(t, 2.0, rc.BackoffFactor)
	assert.Equal(t, 0.2, rc.JitterFactor)
}
