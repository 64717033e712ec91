package llm

import (
	"fmt"
	"sort"
)

// Providers a ModelSpec can name.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultModelKey is the backend used when no explicit selection was made.
const DefaultModelKey = "gpt-oss-120b"

// ModelSpec describes one entry of the fixed model registry.
type ModelSpec struct {
	Key           string
	Provider      string
	Model         string
	DisplayName   string
	Temperature   float32
	MaxTokens     int
	CredentialEnv string
	// BaseURL overrides the provider endpoint; used for OpenAI-compatible
	// hosts such as Groq.
	BaseURL string
}

const groqBaseURL = "https://api.groq.com/openai/v1"

var registry = map[string]ModelSpec{
	"gpt-oss-120b": {
		Key:           "gpt-oss-120b",
		Provider:      ProviderOpenAI,
		Model:         "openai/gpt-oss-120b",
		DisplayName:   "GPT-OSS 120B (OpenAI)",
		Temperature:   0.2,
		MaxTokens:     2048,
		CredentialEnv: "GROQ_API_KEY",
		BaseURL:       groqBaseURL,
	},
	"llama-3.3-70b": {
		Key:           "llama-3.3-70b",
		Provider:      ProviderOpenAI,
		Model:         "llama-3.3-70b-versatile",
		DisplayName:   "Llama 3.3 70B (Meta)",
		Temperature:   0.2,
		MaxTokens:     2048,
		CredentialEnv: "GROQ_API_KEY",
		BaseURL:       groqBaseURL,
	},
	"gemma-3-27b": {
		Key:           "gemma-3-27b",
		Provider:      ProviderGemini,
		Model:         "gemma-3-27b-it",
		DisplayName:   "Gemma 3 27B (Google)",
		Temperature:   0.2,
		MaxTokens:     2048,
		CredentialEnv: "GEMINI_API_KEY",
	},
	"ollama-local": {
		Key:         "ollama-local",
		Provider:    ProviderOllama,
		Model:       "gemma3:latest",
		DisplayName: "Gemma 3 (Ollama, local)",
		Temperature: 0.2,
		MaxTokens:   2048,
	},
}

// Lookup resolves a model key against the fixed registry.
func Lookup(key string) (ModelSpec, bool) {
	spec, ok := registry[key]
	return spec, ok
}

// Keys returns all registered model keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ConfigurationError reports an invalid model selection: an unknown key or
// an absent provider credential. It is surfaced at selection time and is
// fatal to that selection attempt only.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("model configuration error: %s", e.Reason)
}
