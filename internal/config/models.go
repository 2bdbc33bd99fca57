package config

import (
	"time"

	"github.com/mikey/llm-mail-triage/internal/policy"
)

// ModeConfig controls how aggressive a run may be
type ModeConfig struct {
	DryRun          bool
	Action          string `validate:"oneof=trash label archive keep"`
	QuarantineLabel string `validate:"required"`
	PreserveDays    int    `validate:"gte=0"`
}

// LimitsConfig bounds a single run
type LimitsConfig struct {
	MaxMessagesPerRun int           `validate:"gt=0"`
	FetchWindow       time.Duration `validate:"gt=0"`
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider          string        `validate:"oneof=openai gemini bedrock stub"`
	LowConfidence     float64       `validate:"gte=0,lte=1,ltefield=HighConfidence"`
	HighConfidence    float64       `validate:"gte=0,lte=1"`
	MaxBodyChars      int           `validate:"gt=0"`
	Timeout           time.Duration `validate:"gt=0"`
	RequestsPerMinute int           `validate:"gte=0"`
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// SafetyConfig lists what must never be touched, and what is always junk
type SafetyConfig struct {
	WhitelistSenders []string `validate:"dive,required"`
	WhitelistDomains []string `validate:"dive,required"`
	ProtectedLabels  []string `validate:"dive,required"`
	DenylistSenders  []string `validate:"dive,required"`
	DenylistDomains  []string `validate:"dive,required"`
}

// PolicyConfig configures the deterministic rule layer
type PolicyConfig struct {
	NewsletterSenders []string
	SpamSubjects      []string
	Rules             []policy.RuleConfig
}

// ExecutorConfig configures mutation retries
type ExecutorConfig struct {
	MaxAttempts    int           `validate:"gte=1"`
	InitialBackoff time.Duration `validate:"gt=0"`
	MaxBackoff     time.Duration `validate:"gtefield=InitialBackoff"`
	Timeout        time.Duration `validate:"gt=0"`
}

// MailboxConfig selects the mailbox adapter
type MailboxConfig struct {
	Type string `validate:"oneof=gmail imap eml"`
}

// GmailConfig configures the Gmail API mailbox
type GmailConfig struct {
	CredentialsFile   string
	User              string
	Query             string
	RequestsPerSecond float64 `validate:"gte=0"`
}

// IMAPConfig configures the IMAP mailbox
type IMAPConfig struct {
	Host          string
	Port          int `validate:"gte=0,lte=65535"`
	Username      string
	Password      string
	TLS           bool
	Mailbox       string
	ArchiveFolder string
	TrashFolder   string
}

// EMLConfig configures the directory-of-.eml-files mailbox
type EMLConfig struct {
	Dir string
}

// StoreConfig selects the audit store
type StoreConfig struct {
	Type       string `validate:"oneof=memory sqlite mysql"`
	SQLitePath string
	MySQLDSN   string
}

// CacheConfig configures the classification cache
type CacheConfig struct {
	Enabled          bool
	TTL              time.Duration `validate:"gt=0"`
	CleanupFrequency time.Duration `validate:"gt=0"`
}

// ReportEmailConfig configures report delivery over SMTP
type ReportEmailConfig struct {
	Enabled  bool
	To       string `validate:"required_if=Enabled true"`
	From     string `validate:"required_if=Enabled true"`
	SMTPAddr string `validate:"required_if=Enabled true"`
	Username string
	Password string
}

// ReportConfig configures run reports
type ReportConfig struct {
	ExampleCap int `validate:"gt=0"`
	SaveDir    string
	Email      ReportEmailConfig
}

// MetricsConfig configures the Prometheus observer
type MetricsConfig struct {
	PushgatewayURL string `validate:"omitempty,url"`
	Job            string
}

// ScheduleConfig configures the daily run
type ScheduleConfig struct {
	Time     string `validate:"clock"`
	Timezone string `validate:"timezone"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// GetMode returns the run mode configuration
func (c *Config) GetMode() ModeConfig {
	return ModeConfig{
		DryRun:          c.GetBool("mode.dry_run"),
		Action:          c.GetString("mode.action"),
		QuarantineLabel: c.GetString("mode.quarantine_label"),
		PreserveDays:    c.GetInt("mode.preserve_days"),
	}
}

// GetLimits returns the run limits
func (c *Config) GetLimits() LimitsConfig {
	return LimitsConfig{
		MaxMessagesPerRun: c.GetInt("limits.max_messages_per_run"),
		FetchWindow:       c.GetDuration("limits.fetch_window"),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:          c.GetString("llm.provider"),
		LowConfidence:     c.GetFloat64("llm.low_confidence"),
		HighConfidence:    c.GetFloat64("llm.high_confidence"),
		MaxBodyChars:      c.GetInt("llm.max_body_chars"),
		Timeout:           c.GetDuration("llm.timeout"),
		RequestsPerMinute: c.GetInt("llm.requests_per_minute"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetSafety returns the safety gate and denylist configuration
func (c *Config) GetSafety() SafetyConfig {
	return SafetyConfig{
		WhitelistSenders: c.GetStringSlice("safety.whitelist_senders"),
		WhitelistDomains: c.GetStringSlice("safety.whitelist_domains"),
		ProtectedLabels:  c.GetStringSlice("safety.protected_labels"),
		DenylistSenders:  c.GetStringSlice("safety.denylist_senders"),
		DenylistDomains:  c.GetStringSlice("safety.denylist_domains"),
	}
}

// GetPolicy returns the policy configuration. Malformed custom rules are
// reported by Validate.
func (c *Config) GetPolicy() PolicyConfig {
	var rules []policy.RuleConfig
	_ = c.v.UnmarshalKey("policy.rules", &rules)
	return PolicyConfig{
		NewsletterSenders: c.GetStringSlice("policy.newsletter_senders"),
		SpamSubjects:      c.GetStringSlice("policy.spam_subjects"),
		Rules:             rules,
	}
}

// GetExecutor returns the executor retry configuration
func (c *Config) GetExecutor() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    c.GetInt("executor.max_attempts"),
		InitialBackoff: c.GetDuration("executor.initial_backoff"),
		MaxBackoff:     c.GetDuration("executor.max_backoff"),
		Timeout:        c.GetDuration("executor.timeout"),
	}
}

// GetMailbox returns the mailbox selection
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{Type: c.GetString("mailbox.type")}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile:   c.GetString("gmail.credentials_file"),
		User:              c.GetString("gmail.user"),
		Query:             c.GetString("gmail.query"),
		RequestsPerSecond: c.GetFloat64("gmail.requests_per_second"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:          c.GetString("imap.host"),
		Port:          c.GetInt("imap.port"),
		Username:      c.GetString("imap.username"),
		Password:      c.GetString("imap.password"),
		TLS:           c.GetBool("imap.tls"),
		Mailbox:       c.GetString("imap.mailbox"),
		ArchiveFolder: c.GetString("imap.archive_folder"),
		TrashFolder:   c.GetString("imap.trash_folder"),
	}
}

// GetEML returns the .eml directory configuration
func (c *Config) GetEML() EMLConfig {
	return EMLConfig{Dir: c.GetString("eml.dir")}
}

// GetStore returns the audit store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              c.GetDuration("cache.ttl"),
		CleanupFrequency: c.GetDuration("cache.cleanup_frequency"),
	}
}

// GetReport returns the reporting configuration
func (c *Config) GetReport() ReportConfig {
	return ReportConfig{
		ExampleCap: c.GetInt("report.example_cap"),
		SaveDir:    c.GetString("report.save_dir"),
		Email: ReportEmailConfig{
			Enabled:  c.GetBool("report.email.enabled"),
			To:       c.GetString("report.email.to"),
			From:     c.GetString("report.email.from"),
			SMTPAddr: c.GetString("report.email.smtp_addr"),
			Username: c.GetString("report.email.username"),
			Password: c.GetString("report.email.password"),
		},
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		PushgatewayURL: c.GetString("metrics.pushgateway_url"),
		Job:            c.GetString("metrics.job"),
	}
}

// GetSchedule returns the scheduler configuration
func (c *Config) GetSchedule() ScheduleConfig {
	return ScheduleConfig{
		Time:     c.GetString("schedule.time"),
		Timezone: c.GetString("schedule.timezone"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}
