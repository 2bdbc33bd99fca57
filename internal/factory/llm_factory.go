package factory

import (
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-triage/internal/adapters/gemini"
	"github.com/mikey/llm-mail-triage/internal/adapters/openai"
	"github.com/mikey/llm-mail-triage/internal/adapters/stub"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/credential"
	"go.uber.org/zap"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	secrets *credential.Store
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, secrets *credential.Store) *LLMFactory {
	return &LLMFactory{
		cfg:     cfg,
		logger:  logger,
		secrets: secrets,
	}
}

// CreateLLMClient creates a new LLM client based on the configuration
func (f *LLMFactory) CreateLLMClient() (core.LLMClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg.GetBedrock(), f.logger).CreateLLMClient()
	case "gemini":
		gc := f.cfg.GetGemini()
		key, err := f.secrets.Resolve(gc.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
		}
		gc.APIKey = key
		return gemini.NewFactory(gc, f.logger).CreateLLMClient()
	case "openai":
		oc := f.cfg.GetOpenAI()
		key, err := f.secrets.Resolve(oc.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve OpenAI API key: %w", err)
		}
		oc.APIKey = key
		return openai.NewFactory(oc, f.logger).CreateLLMClient()
	case "stub":
		f.logger.Warn("Using the offline keyword classifier")
		return stub.NewKeywordClient(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
