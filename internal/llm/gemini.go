package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"docpilot/internal/rag/interfaces"
)

// Gemini is a completion client for the Google Generative AI API.
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini creates a new Gemini client from a registry spec.
func NewGemini(ctx context.Context, spec ModelSpec, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(spec.Model)
	model.SetTemperature(spec.Temperature)
	model.SetMaxOutputTokens(int32(spec.MaxTokens))

	return &Gemini{model: model}, nil
}

// Generate returns the full completion text in one round trip.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textFromResponse(resp), nil
}

// GenerateStream yields the accumulated answer after each increment.
func (g *Gemini) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt))

	out := make(chan string)
	go func() {
		accumulate(ctx, out, func() (string, error) {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return "", io.EOF
			}
			if err != nil {
				return "", err
			}
			return textFromResponse(resp), nil
		})
	}()
	return out, nil
}

// textFromResponse flattens a genai response into plain text. Adapters hand
// callers text only; no provider response shape leaks upward.
func textFromResponse(resp *genai.GenerateContentResponse) string {
	var acc string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				acc += string(txt)
			}
		}
	}
	return acc
}

var _ interfaces.LLM = (*Gemini)(nil)
