package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/audit"
	"github.com/mikey/llm-mail-triage/internal/adapters/report"
	"github.com/mikey/llm-mail-triage/internal/adapters/stub"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/credential"
)

func newConfig(values map[string]interface{}) *config.Config {
	cfg := config.NewFromViper(config.NewEmptyViper())
	for k, v := range values {
		cfg.Set(k, v)
	}
	return cfg
}

func secrets(items ...keyring.Item) *credential.Store {
	return credential.NewStoreWithKeyring(keyring.NewArrayKeyring(items))
}

func TestLLMFactory(t *testing.T) {
	t.Run("stub", func(t *testing.T) {
		f := NewLLMFactory(newConfig(map[string]interface{}{"llm.provider": "stub"}), zap.NewNop(), secrets())
		client, err := f.CreateLLMClient()
		require.NoError(t, err)
		assert.IsType(t, &stub.KeywordClient{}, client)
	})

	t.Run("openai key from keyring", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"llm.provider":   "openai",
			"openai.api_key": "keyring:openai",
		})
		f := NewLLMFactory(cfg, zap.NewNop(), secrets(keyring.Item{Key: "openai", Data: []byte("sk-test")}))
		client, err := f.CreateLLMClient()
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("missing keyring entry", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"llm.provider":   "openai",
			"openai.api_key": "keyring:absent",
		})
		_, err := NewLLMFactory(cfg, zap.NewNop(), secrets()).CreateLLMClient()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to resolve OpenAI API key")
	})

	t.Run("unsupported", func(t *testing.T) {
		f := NewLLMFactory(newConfig(map[string]interface{}{"llm.provider": "mystery"}), zap.NewNop(), secrets())
		_, err := f.CreateLLMClient()
		assert.EqualError(t, err, "unsupported LLM provider: mystery")
	})
}

func TestMailboxFactory(t *testing.T) {
	dir := t.TempDir()
	raw := "From: a@example.com\r\nSubject: Hi\r\nDate: Mon, 03 Jun 2024 10:00:00 +0000\r\n\r\nhello\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m1.eml"), []byte(raw), 0o644))

	t.Run("eml", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{"mailbox.type": "eml", "eml.dir": dir})
		mb, err := NewMailboxFactory(cfg, zap.NewNop(), secrets()).CreateMailbox(context.Background())
		require.NoError(t, err)

		msg, err := mb.Fetch(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, "Hi", msg.Subject)
	})

	t.Run("imap resolves password", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"mailbox.type":  "imap",
			"imap.host":     "imap.example.com",
			"imap.password": "keyring:imap",
		})
		mb, err := NewMailboxFactory(cfg, zap.NewNop(), secrets(keyring.Item{Key: "imap", Data: []byte("pw")})).
			CreateMailbox(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, mb)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{"mailbox.type": "pop3"})
		_, err := NewMailboxFactory(cfg, zap.NewNop(), secrets()).CreateMailbox(context.Background())
		assert.EqualError(t, err, "unsupported mailbox type: pop3")
	})
}

func TestAuditFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := NewAuditFactory(newConfig(map[string]interface{}{"store.type": "memory"}), zap.NewNop()).CreateAuditStore()
		require.NoError(t, err)
		assert.IsType(t, &audit.MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"store.type":        "sqlite",
			"store.sqlite_path": filepath.Join(t.TempDir(), "nested", "triage.db"),
		})
		store, err := NewAuditFactory(cfg, zap.NewNop()).CreateAuditStore()
		require.NoError(t, err)
		defer store.Close()

		_, ok, err := store.Watermark(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewAuditFactory(newConfig(map[string]interface{}{"store.type": "redis"}), zap.NewNop()).CreateAuditStore()
		assert.EqualError(t, err, "unsupported store type: redis")
	})
}

func TestCacheFactory(t *testing.T) {
	cfg := newConfig(map[string]interface{}{"cache.enabled": false, "cache.ttl": "2h"})
	f := NewCacheFactory(cfg, zap.NewNop())

	c := f.CreateCacheRepository()
	defer c.Stop()

	assert.False(t, f.IsCacheEnabled())
	assert.Equal(t, "2h0m0s", f.GetCacheTTL().String())
}

func TestReportFactory(t *testing.T) {
	t.Run("log only", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{"report.save_dir": ""})
		sinks, err := NewReportFactory(cfg, zap.NewNop(), secrets()).CreateSinks()
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.IsType(t, &report.LogSink{}, sinks[0])
	})

	t.Run("file and smtp", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"report.save_dir":       t.TempDir(),
			"report.email.enabled":  true,
			"report.email.to":       "me@example.com, you@example.com",
			"report.email.from":     "triage@example.com",
			"report.email.password": "keyring:smtp",
		})
		sinks, err := NewReportFactory(cfg, zap.NewNop(), secrets(keyring.Item{Key: "smtp", Data: []byte("pw")})).CreateSinks()
		require.NoError(t, err)
		require.Len(t, sinks, 3)
		assert.IsType(t, &report.FileSink{}, sinks[1])
		assert.IsType(t, &report.SMTPSink{}, sinks[2])
	})

	t.Run("unresolvable smtp password", func(t *testing.T) {
		cfg := newConfig(map[string]interface{}{
			"report.email.enabled":  true,
			"report.email.password": "keyring:missing",
		})
		_, err := NewReportFactory(cfg, zap.NewNop(), secrets()).CreateSinks()
		require.Error(t, err)
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, splitList(" a@x.com ,, b@y.com "))
	assert.Nil(t, splitList(""))
}
