package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"docpilot/internal/rag/interfaces"
)

// Ollama is a completion client for a local Ollama server.
type Ollama struct {
	client *ollama.Client
	spec   ModelSpec
}

// NewOllama creates a new Ollama client from a registry spec. baseURL
// defaults to the standard local address when empty.
func NewOllama(spec ModelSpec, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &Ollama{
		client: ollama.NewClient(parsedURL, hc),
		spec:   spec,
	}, nil
}

func (o *Ollama) options() map[string]interface{} {
	return map[string]interface{}{
		"temperature": o.spec.Temperature,
		"num_predict": o.spec.MaxTokens,
	}
}

// Generate returns the full completion text in one round trip.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	var sb strings.Builder
	err := o.client.Generate(ctx, &ollama.GenerateRequest{
		Model:   o.spec.Model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: o.options(),
	}, func(resp ollama.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	return sb.String(), nil
}

// GenerateStream yields the accumulated answer after each increment.
// Cancelling ctx aborts the generate call through the callback error.
func (o *Ollama) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	stream := true
	out := make(chan string)

	go func() {
		defer close(out)

		var sb strings.Builder
		err := o.client.Generate(ctx, &ollama.GenerateRequest{
			Model:   o.spec.Model,
			Prompt:  prompt,
			Stream:  &stream,
			Options: o.options(),
		}, func(resp ollama.GenerateResponse) error {
			sb.WriteString(resp.Response)
			select {
			case out <- sb.String():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case out <- "Error: " + err.Error():
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

var _ interfaces.LLM = (*Ollama)(nil)
