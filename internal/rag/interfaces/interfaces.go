package interfaces

import (
	"context"

	"docpilot/internal/rag/schema"
)

// Loader is the interface for loading data from a source file and
// converting it into Document objects.
type Loader interface {
	Load(ctx context.Context, path string) ([]*schema.Document, error)
}

// Splitter is the interface for splitting Documents into smaller chunks.
type Splitter interface {
	Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error)
}

// EmbeddingModel is the interface for a text embedding model.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for storing and querying document vectors.
// Filters are metadata equality constraints applied server-side where the
// backend supports them.
type VectorStore interface {
	Add(ctx context.Context, docs []*schema.Document) error
	Query(ctx context.Context, embedding []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error)
	// Delete removes every chunk matching the filter. Deleting an absent
	// match is a no-op, not an error.
	Delete(ctx context.Context, filters map[string]interface{}) error
}

// LLM is the interface every language model backend adapter must satisfy.
// Adapters normalize provider responses to plain text; callers never see a
// provider-specific response shape.
type LLM interface {
	// Generate returns the full completion for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream returns a finite, non-restartable sequence of
	// progressively accumulated answer text. Each element is the answer so
	// far, not a delta; the final element is the complete answer. When the
	// backend fails mid-stream the final element is "Error: <message>"
	// instead. The channel is closed when the backend signals completion,
	// fails, or ctx is cancelled.
	GenerateStream(ctx context.Context, prompt string) (<-chan string, error)
}
