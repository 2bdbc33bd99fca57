package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance. An explicit configFile takes
// precedence over the search path.
func New(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-mail-triage/")
		v.AddConfigPath("$HOME/.llm-mail-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Run mode
	v.SetDefault("mode.dry_run", true)
	v.SetDefault("mode.action", "trash")
	v.SetDefault("mode.quarantine_label", "ToReview")
	v.SetDefault("mode.preserve_days", 7)

	v.SetDefault("limits.max_messages_per_run", 500)
	v.SetDefault("limits.fetch_window", "24h")

	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.low_confidence", 0.5)
	v.SetDefault("llm.high_confidence", 0.85)
	v.SetDefault("llm.max_body_chars", 2000)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.requests_per_minute", 60)

	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Safety and policy
	v.SetDefault("safety.whitelist_senders", []string{})
	v.SetDefault("safety.whitelist_domains", []string{})
	v.SetDefault("safety.protected_labels", []string{"STARRED", "IMPORTANT"})
	v.SetDefault("safety.denylist_senders", []string{})
	v.SetDefault("safety.denylist_domains", []string{})

	v.SetDefault("policy.newsletter_senders", []string{"newsletter", "newsletters", "digest", "weekly"})
	v.SetDefault("policy.spam_subjects", []string{"win money", "free!!!", "urgent action required", "loan approved"})

	v.SetDefault("executor.max_attempts", 4)
	v.SetDefault("executor.initial_backoff", "1s")
	v.SetDefault("executor.max_backoff", "30s")
	v.SetDefault("executor.timeout", "20s")

	// Mailbox
	v.SetDefault("mailbox.type", "gmail")
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.user", "me")
	v.SetDefault("gmail.query", "in:inbox")
	v.SetDefault("gmail.requests_per_second", 5.0)
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.archive_folder", "Archive")
	v.SetDefault("imap.trash_folder", "Trash")
	v.SetDefault("eml.dir", "./mail")

	// Audit store
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/triage.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage?parseTime=true")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")

	// Reporting
	v.SetDefault("report.example_cap", 5)
	v.SetDefault("report.save_dir", "./reports")
	v.SetDefault("report.email.enabled", false)
	v.SetDefault("report.email.smtp_addr", "localhost:587")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "mail_triage")

	v.SetDefault("schedule.time", "22:00")
	v.SetDefault("schedule.timezone", "UTC")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration. Unparsable
// values yield 0, which validation rejects.
func (c *Config) GetDuration(key string) time.Duration {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0
	}
	return d
}

// Set overrides a value, e.g. from a command line flag
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
