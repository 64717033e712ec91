package pipeline

import (
	"context"
	"fmt"
	"time"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/internal/retention"
	"docpilot/pkg/logger"
)

// IndexingPipeline orchestrates splitting, embedding, storing, and ledger
// tracking for one document.
type IndexingPipeline struct {
	splitter interfaces.Splitter
	embedder interfaces.EmbeddingModel
	store    interfaces.VectorStore
	ledger   *retention.Ledger
	log      *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(
	splitter interfaces.Splitter,
	embedder interfaces.EmbeddingModel,
	store interfaces.VectorStore,
	ledger *retention.Ledger,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		ledger:   ledger,
		log:      log,
	}
}

// Ingest tags, splits, embeds and stores the document, then records it in
// the retention ledger. It returns the number of chunks indexed.
//
// The index write happens before the ledger write: when the ledger write
// fails the chunks are already searchable but untracked, a known gap that
// surfaces as an error rather than being silently repaired.
func (p *IndexingPipeline) Ingest(ctx context.Context, doc *schema.Document, sessionToken string, isSample bool, now time.Time) (int, error) {
	source := doc.Source()
	p.log.Info(fmt.Sprintf("Starting ingestion of %s (sample=%t)", source, isSample))

	doc.Tag(sessionToken, isSample, now)

	chunks, err := p.splitter.Split(ctx, []*schema.Document{doc})
	if err != nil {
		return 0, fmt.Errorf("failed to split %s: %w", source, err)
	}
	if len(chunks) == 0 {
		p.log.Info(fmt.Sprintf("Document %s produced no chunks, nothing to index", source))
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks of %s: %w", source, err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks of %s", len(embeddings), len(chunks), source)
	}
	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}

	if err := p.store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to index chunks of %s: %w", source, err)
	}
	if err := p.ledger.Record(source, sessionToken, isSample, now); err != nil {
		return 0, fmt.Errorf("indexed %s but failed to track it in the ledger: %w", source, err)
	}

	p.log.Info(fmt.Sprintf("Indexed %d chunks of %s", len(chunks), source))
	return len(chunks), nil
}
