package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
)

// MemoryStore is a brute-force cosine similarity store held entirely in
// memory. It backs tests and the local (no Milvus) deployment mode.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []*schema.Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add stores the documents. The whole batch is visible once Add returns.
func (s *MemoryStore) Add(ctx context.Context, docs []*schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
	return nil
}

// Query scores every stored document against the query embedding by cosine
// similarity and returns the topK matches passing the filter. Ties keep
// insertion order, so results are stable.
func (s *MemoryStore) Query(ctx context.Context, embedding []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *schema.Document
		score float64
		order int
	}
	var candidates []scored
	for i, doc := range s.docs {
		if !matches(doc, filters) {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: cosine(embedding, doc.Embedding), order: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}

	results := make([]*schema.Document, 0, topK)
	for _, c := range candidates[:topK] {
		copied := &schema.Document{
			ID:        c.doc.ID,
			Text:      c.doc.Text,
			Embedding: c.doc.Embedding,
			Metadata:  make(map[string]interface{}, len(c.doc.Metadata)+1),
		}
		for k, v := range c.doc.Metadata {
			copied.Metadata[k] = v
		}
		copied.Metadata["score"] = float32(c.score)
		results = append(results, copied)
	}
	return results, nil
}

// Delete removes every document matching the filter; absent matches are a
// no-op.
func (s *MemoryStore) Delete(ctx context.Context, filters map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.docs[:0]
	for _, doc := range s.docs {
		if !matches(doc, filters) {
			kept = append(kept, doc)
		}
	}
	s.docs = kept
	return nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func matches(doc *schema.Document, filters map[string]interface{}) bool {
	for k, want := range filters {
		if doc.Metadata[k] != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ interfaces.VectorStore = (*MemoryStore)(nil)
