package llm

import (
	"context"
	"fmt"
	"os"

	"docpilot/internal/rag/interfaces"
)

// NewGateway validates modelKey against the registry, resolves the
// provider's credential from the environment, and returns a ready backend.
// Unknown keys and missing credentials fail fast with a
// ConfigurationError; nothing is retried.
func NewGateway(ctx context.Context, modelKey string) (interfaces.LLM, ModelSpec, error) {
	spec, ok := Lookup(modelKey)
	if !ok {
		return nil, ModelSpec{}, &ConfigurationError{
			Reason: fmt.Sprintf("unknown model key %q (known: %v)", modelKey, Keys()),
		}
	}

	var apiKey string
	if spec.CredentialEnv != "" {
		apiKey = os.Getenv(spec.CredentialEnv)
		if apiKey == "" {
			return nil, spec, &ConfigurationError{
				Reason: fmt.Sprintf("environment variable %s is not set for model %q", spec.CredentialEnv, modelKey),
			}
		}
	}

	var backend interfaces.LLM
	var err error
	switch spec.Provider {
	case ProviderOpenAI:
		backend, err = NewOpenAI(spec, apiKey)
	case ProviderGemini:
		backend, err = NewGemini(ctx, spec, apiKey)
	case ProviderOllama:
		backend, err = NewOllama(spec, os.Getenv("OLLAMA_HOST"))
	default:
		return nil, spec, &ConfigurationError{
			Reason: fmt.Sprintf("unsupported provider %q for model %q", spec.Provider, modelKey),
		}
	}
	if err != nil {
		return nil, spec, err
	}
	return backend, spec, nil
}
