package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"category":`), genai.Text(`"promo"}`)}},
		}},
	}
	assert.Equal(t, `{"category":"promo"}`, responseText(resp))
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: core.OutcomeTimeout},
		{name: "http 429", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: core.OutcomeQuota},
		{name: "grpc exhausted", err: status.Error(codes.ResourceExhausted, "quota"), want: core.OutcomeQuota},
		{name: "grpc deadline", err: status.Error(codes.DeadlineExceeded, "slow"), want: core.OutcomeTimeout},
		{name: "other", err: errors.New("boom"), want: core.OutcomeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorReason(tt.err))
		})
	}
}
