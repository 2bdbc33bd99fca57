package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/prompt"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiClient is an implementation of the LLMClient interface using Google Gemini
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.SystemMessage))

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ClassifyEmail asks the model to classify one message
func (c *GeminiClient) ClassifyEmail(ctx context.Context, p core.PromptContext) (*core.Classification, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt.Build(p)))
	if err != nil {
		return nil, &core.ClassifierError{
			Reason: errorReason(err),
			Err:    fmt.Errorf("failed to generate content with Gemini: %w", err),
		}
	}

	text := responseText(resp)
	if text == "" {
		return nil, &core.ClassifierError{Reason: core.OutcomeMalformed, Err: fmt.Errorf("empty response from Gemini")}
	}

	return prompt.Parse(text, c.modelName)
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func errorReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.OutcomeTimeout
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return core.OutcomeQuota
	}
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return core.OutcomeQuota
	case codes.DeadlineExceeded:
		return core.OutcomeTimeout
	}
	return core.OutcomeUnavailable
}
