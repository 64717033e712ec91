package pipeline

import (
	"context"
	"fmt"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/pkg/logger"
)

// DefaultTopK is how many chunks a query retrieves before session
// filtering.
const DefaultTopK = 4

// RetrievalPipeline embeds a query and finds the nearest chunks.
type RetrievalPipeline struct {
	embedder interfaces.EmbeddingModel
	store    interfaces.VectorStore
	log      *logger.Logger
}

// NewRetrievalPipeline creates a new RetrievalPipeline.
func NewRetrievalPipeline(embedder interfaces.EmbeddingModel, store interfaces.VectorStore, log *logger.Logger) *RetrievalPipeline {
	return &RetrievalPipeline{embedder: embedder, store: store, log: log}
}

// Run embeds the query and searches the whole index. Session scoping is
// applied by the caller with FilterVisible, after retrieval.
func (p *RetrievalPipeline) Run(ctx context.Context, query string, topK int) ([]*schema.Document, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	embeddings, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for the query")
	}

	docs, err := p.store.Query(ctx, embeddings[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	p.log.Info(fmt.Sprintf("Retrieved %d chunk candidates", len(docs)))
	return docs, nil
}

// FilterVisible keeps the chunks a session may see: its own chunks and
// every sample chunk. A chunk owned by another session never passes.
func FilterVisible(docs []*schema.Document, sessionToken string) []*schema.Document {
	var visible []*schema.Document
	for _, doc := range docs {
		if doc.IsSample() || (sessionToken != "" && doc.Owner() == sessionToken) {
			visible = append(visible, doc)
		}
	}
	return visible
}
