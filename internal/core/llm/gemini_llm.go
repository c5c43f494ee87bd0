package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docindex/internal/core"
)

const defaultGenModel = "gemini-1.5-flash"

// GeminiLLM answers prompts with a Gemini generative model. A fresh model
// handle is taken per call so the system instruction never leaks between
// concurrent requests.
type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGenModel
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return "", fmt.Errorf("gemini generate: %v: %w", blocked, core.ErrNoAnswer)
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate. A blocked
// prompt, a missing candidate or an empty reply is reported as
// core.ErrNoAnswer with the reason Gemini gave.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("gemini generate: empty response: %w", core.ErrNoAnswer)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini generate: prompt blocked (%s): %w", fb.BlockReason, core.ErrNoAnswer)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini generate: no candidates: %w", core.ErrNoAnswer)
	}

	cand := resp.Candidates[0]
	var b strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("gemini generate: no text (finish reason %s): %w", cand.FinishReason, core.ErrNoAnswer)
	}
	return b.String(), nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
