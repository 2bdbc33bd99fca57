package di

import (
	"context"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/llm-mail-triage/internal/adapters/cache"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/credential"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/metrics"
	"github.com/mikey/llm-mail-triage/internal/policy"
	"github.com/mikey/llm-mail-triage/internal/safety"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// Overrides are configuration values set from the command line. They win
// over the config file and the environment.
type Overrides map[string]interface{}

// BuildContainer creates and configures a dependency injection container
// for the full triage pipeline
func BuildContainer(configFile string, overrides Overrides) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return loadConfig(configFile, overrides)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register factories
	for _, ctor := range []interface{}{
		factory.NewCacheFactory,
		factory.NewMailboxFactory,
		factory.NewAuditFactory,
		factory.NewReportFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return nil, err
		}
	}

	// Register metrics observer
	if err := container.Provide(metrics.NewObserver); err != nil {
		return nil, err
	}
	if err := container.Provide(func(o *metrics.Observer) core.RunObserver {
		return o
	}); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) *cache.MemoryCache {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *cache.MemoryCache) core.CacheRepository {
		return c
	}); err != nil {
		return nil, err
	}

	// Register classifier settings
	if err := container.Provide(func(cfg *config.Config, f *factory.CacheFactory) core.ClassifierConfig {
		llm := cfg.GetLLM()
		return core.ClassifierConfig{
			Timeout:      llm.Timeout,
			MaxBodyChars: llm.MaxBodyChars,
			CacheEnabled: f.IsCacheEnabled(),
			CacheTTL:     f.GetCacheTTL(),
		}
	}); err != nil {
		return nil, err
	}

	// Register mailbox
	if err := container.Provide(func(f *factory.MailboxFactory) (core.Mailbox, error) {
		return f.CreateMailbox(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register audit store
	if err := container.Provide(func(f *factory.AuditFactory) (factory.AuditStore, error) {
		return f.CreateAuditStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s factory.AuditStore) core.AuditStore {
		return s
	}); err != nil {
		return nil, err
	}

	// Register report sinks
	if err := container.Provide(func(f *factory.ReportFactory) ([]core.ReportSink, error) {
		return f.CreateSinks()
	}); err != nil {
		return nil, err
	}

	// Register executor
	if err := container.Provide(func(cfg *config.Config, mailbox core.Mailbox, logger *zap.Logger) *core.Executor {
		return core.NewExecutor(mailbox, retryConfig(cfg.GetExecutor()), logger)
	}); err != nil {
		return nil, err
	}

	// Register triage service
	if err := container.Provide(func(cfg *config.Config) core.ServiceConfig {
		return serviceConfig(cfg)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewTriageService); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers what every command shares: secrets, the LLM
// client and the decision chain
func provideCommon(container *dig.Container) error {
	for _, ctor := range []interface{}{
		credential.NewStore,
		factory.NewLLMFactory,
		utils.NewTextProcessor,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return err
	}

	// Register classifier rate limit
	if err := container.Provide(func(cfg *config.Config) *rate.Limiter {
		return classifierLimiter(cfg.GetLLM().RequestsPerMinute)
	}); err != nil {
		return err
	}

	// Register safety gate
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *safety.Gate {
		sc := cfg.GetSafety()
		return safety.NewGate(safety.Rules{
			WhitelistSenders: sc.WhitelistSenders,
			WhitelistDomains: sc.WhitelistDomains,
			ProtectedLabels:  sc.ProtectedLabels,
		}, logger)
	}); err != nil {
		return err
	}

	// Register policy engine
	if err := container.Provide(func(cfg *config.Config, gate *safety.Gate, logger *zap.Logger) (*policy.Engine, error) {
		sc := cfg.GetSafety()
		pc := cfg.GetPolicy()
		return policy.NewEngine(gate, policy.Config{
			DenylistSenders:   sc.DenylistSenders,
			DenylistDomains:   sc.DenylistDomains,
			NewsletterSenders: pc.NewsletterSenders,
			SpamSubjects:      pc.SpamSubjects,
			Rules:             pc.Rules,
		}, logger)
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(
		client core.LLMClient,
		cacheRepo core.CacheRepository,
		limiter *rate.Limiter,
		text *utils.TextProcessor,
		observer core.RunObserver,
		logger *zap.Logger,
		cfg core.ClassifierConfig,
	) *core.ClassifierAdapter {
		return core.NewClassifierAdapter(client, cacheRepo, limiter, text, observer, logger, cfg)
	}); err != nil {
		return err
	}

	// Register resolver
	if err := container.Provide(func(cfg *config.Config) core.ResolverConfig {
		return resolverConfig(cfg)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		engine *policy.Engine,
		classifier *core.ClassifierAdapter,
		gate *safety.Gate,
		rc core.ResolverConfig,
		logger *zap.Logger,
	) *core.Resolver {
		strategies := []core.Strategy{engine, core.NewClassifierStrategy(classifier, rc)}
		return core.NewResolver(strategies, gate.Evaluate, rc, logger)
	}); err != nil {
		return err
	}

	return nil
}

func loadConfig(configFile string, overrides Overrides) (*config.Config, error) {
	cfg, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		cfg.Set(key, value)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func classifierLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

func resolverConfig(cfg *config.Config) core.ResolverConfig {
	llm := cfg.GetLLM()
	mode := cfg.GetMode()
	junk, ok := core.ParseAction(mode.Action)
	if !ok {
		junk = core.ActionTrash
	}
	return core.ResolverConfig{
		LowConfidence:   llm.LowConfidence,
		HighConfidence:  llm.HighConfidence,
		QuarantineLabel: mode.QuarantineLabel,
		JunkAction:      junk,
	}
}

func retryConfig(ec config.ExecutorConfig) core.RetryConfig {
	rc := core.DefaultRetryConfig()
	rc.MaxAttempts = ec.MaxAttempts
	rc.InitialBackoff = ec.InitialBackoff
	rc.MaxBackoff = ec.MaxBackoff
	rc.Timeout = ec.Timeout
	return rc
}

func serviceConfig(cfg *config.Config) core.ServiceConfig {
	mode := cfg.GetMode()
	limits := cfg.GetLimits()
	return core.ServiceConfig{
		DryRun:      mode.DryRun,
		MaxMessages: limits.MaxMessagesPerRun,
		FetchWindow: limits.FetchWindow,
		ExampleCap:  cfg.GetReport().ExampleCap,
	}
}
