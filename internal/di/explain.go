package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/logging"
)

// ExplainOptions contains the command line options of the explain tool
type ExplainOptions struct {
	ConfigFile string
	// Provider overrides llm.provider when set
	Provider string
	Verbose  bool
	JSONLog  bool
}

// BuildExplainContainer creates a container holding only the decision
// chain. Nothing in it touches a mailbox or the audit store.
func BuildExplainContainer(opts ExplainOptions) (*dig.Container, error) {
	container := dig.New()

	overrides := Overrides{}
	if opts.Provider != "" {
		overrides["llm.provider"] = opts.Provider
	}

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return loadConfig(opts.ConfigFile, overrides)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func() (*zap.Logger, error) {
		return logging.InitConsoleLogger(opts.Verbose, opts.JSONLog)
	}); err != nil {
		return nil, err
	}

	// One message, so no cache and no metrics
	if err := container.Provide(func() core.RunObserver { return core.NopObserver }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() core.CacheRepository { return nil }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) core.ClassifierConfig {
		llm := cfg.GetLLM()
		return core.ClassifierConfig{
			Timeout:      llm.Timeout,
			MaxBodyChars: llm.MaxBodyChars,
		}
	}); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	return container, nil
}
