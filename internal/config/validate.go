package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/policy"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("clock", validateClock)
}

// validateClock accepts a 24h "HH:MM" time of day
func validateClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// Settings is the fully resolved, validated configuration
type Settings struct {
	Mode     ModeConfig
	Limits   LimitsConfig
	LLM      LLMConfig
	Safety   SafetyConfig
	Policy   PolicyConfig
	Executor ExecutorConfig
	Mailbox  MailboxConfig
	Gmail    GmailConfig
	IMAP     IMAPConfig
	EML      EMLConfig
	Store    StoreConfig
	Cache    CacheConfig
	Report   ReportConfig
	Metrics  MetricsConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// Settings resolves every section
func (c *Config) Settings() Settings {
	return Settings{
		Mode:     c.GetMode(),
		Limits:   c.GetLimits(),
		LLM:      c.GetLLM(),
		Safety:   c.GetSafety(),
		Policy:   c.GetPolicy(),
		Executor: c.GetExecutor(),
		Mailbox:  c.GetMailbox(),
		Gmail:    c.GetGmail(),
		IMAP:     c.GetIMAP(),
		EML:      c.GetEML(),
		Store:    c.GetStore(),
		Cache:    c.GetCache(),
		Report:   c.GetReport(),
		Metrics:  c.GetMetrics(),
		Schedule: c.GetSchedule(),
		Logging:  c.GetLogging(),
	}
}

// Validate checks the whole configuration. The returned error is a
// *core.ConfigurationError naming the first offending field.
func (c *Config) Validate() error {
	var rules []policy.RuleConfig
	if err := c.v.UnmarshalKey("policy.rules", &rules); err != nil {
		return &core.ConfigurationError{Field: "policy.rules", Err: err}
	}
	return ValidateSettings(c.Settings())
}

// ValidateSettings checks already resolved settings
func ValidateSettings(s Settings) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &core.ConfigurationError{
				Field: configKey(fe.Namespace()),
				Err:   fmt.Errorf("failed on %q (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &core.ConfigurationError{Err: err}
	}

	switch s.Mailbox.Type {
	case "imap":
		if s.IMAP.Host == "" {
			return &core.ConfigurationError{Field: "imap.host", Err: errors.New("required for the imap mailbox")}
		}
	case "eml":
		if s.EML.Dir == "" {
			return &core.ConfigurationError{Field: "eml.dir", Err: errors.New("required for the eml mailbox")}
		}
	}

	switch s.Store.Type {
	case "sqlite":
		if s.Store.SQLitePath == "" {
			return &core.ConfigurationError{Field: "store.sqlite_path", Err: errors.New("required for the sqlite store")}
		}
	case "mysql":
		if s.Store.MySQLDSN == "" {
			return &core.ConfigurationError{Field: "store.mysql_dsn", Err: errors.New("required for the mysql store")}
		}
	}

	return nil
}

// configKey turns "Settings.LLM.LowConfidence" into "llm.lowconfidence"
func configKey(namespace string) string {
	return strings.ToLower(strings.TrimPrefix(namespace, "Settings."))
}
