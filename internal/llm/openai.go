package llm

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"docpilot/internal/rag/interfaces"
)

// OpenAI is a completion client for the OpenAI chat API and any
// OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	spec   ModelSpec
}

// NewOpenAI creates a new OpenAI client from a registry spec.
func NewOpenAI(spec ModelSpec, apiKey string) (*OpenAI, error) {
	config := openai.DefaultConfig(apiKey)
	if spec.BaseURL != "" {
		config.BaseURL = spec.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		spec:   spec,
	}, nil
}

func (o *OpenAI) request(prompt string) openai.ChatCompletionRequest {
	temperature := o.spec.Temperature
	return openai.ChatCompletionRequest{
		Model:       o.spec.Model,
		Temperature: &temperature,
		MaxTokens:   o.spec.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Generate returns the full completion text in one round trip.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream yields the accumulated answer after each delta. The
// producer stops when the backend finishes or ctx is cancelled; cancelling
// closes the underlying stream.
func (o *OpenAI) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.request(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion stream: %w", err)
	}

	out := make(chan string)
	go func() {
		defer stream.Close()
		accumulate(ctx, out, func() (string, error) {
			resp, err := stream.Recv()
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 {
				return "", nil
			}
			return resp.Choices[0].Delta.Content, nil
		})
	}()
	return out, nil
}

var _ interfaces.LLM = (*OpenAI)(nil)
