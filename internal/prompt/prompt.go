// Package prompt holds the classification prompt shared by every LLM
// provider and the lenient parser for their replies.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// SystemMessage is sent as the system role where the provider supports one
const SystemMessage = "You are an email triage assistant. Respond only with JSON."

const format = `You are an email triage assistant. Classify the following email.
Respond with a JSON object containing:
- category: one of "spam", "promo", "newsletter", "personal", "receipt", "unknown"
- confidence: number between 0 and 1 (how confident you are in the category)
- suggested_action: one of "keep", "label", "archive", "trash"
- rationale: string (one short sentence explaining the choice)

Only suggest "trash" for unsolicited junk. Anything that might matter to the
recipient should be kept.

Email:
From: %s
Subject: %s
Preview: %s
Body%s:
%s

Respond only with the JSON object and nothing else.`

// Response is the JSON object the model is asked to produce
type Response struct {
	Category        string  `json:"category"`
	Confidence      float64 `json:"confidence"`
	SuggestedAction string  `json:"suggested_action"`
	Rationale       string  `json:"rationale"`
}

// Build renders the user prompt for p
func Build(p core.PromptContext) string {
	note := ""
	if p.Truncated {
		note = " (truncated)"
	}
	return fmt.Sprintf(format, p.From, p.Subject, p.Preview, note, p.Body)
}

// Parse extracts a classification from the model's reply. The reply may
// wrap the JSON object in prose or code fences.
func Parse(text, model string) (*core.Classification, error) {
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, &core.ClassifierError{Reason: core.OutcomeMalformed, Err: fmt.Errorf("failed to extract JSON from LLM response: %w", err)}
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
			return nil, &core.ClassifierError{Reason: core.OutcomeMalformed, Err: fmt.Errorf("failed to parse LLM response as JSON: %w", err)}
		}
	}

	if strings.TrimSpace(resp.Category) == "" && strings.TrimSpace(resp.SuggestedAction) == "" {
		return nil, &core.ClassifierError{Reason: core.OutcomeMalformed, Err: errors.New("response has neither category nor action")}
	}

	return &core.Classification{
		Category:        core.Category(resp.Category),
		Confidence:      resp.Confidence,
		SuggestedAction: core.Action(resp.SuggestedAction),
		Rationale:       strings.TrimSpace(resp.Rationale),
		Model:           model,
	}, nil
}
