package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docpilot/internal/config"
	"docpilot/internal/llm"
	"docpilot/internal/rag/embeddings"
	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/loaders"
	"docpilot/internal/rag/pipeline"
	"docpilot/internal/rag/schema"
	"docpilot/internal/rag/splitters"
	"docpilot/internal/rag/storages/vectorstore"
	"docpilot/internal/retention"
	"docpilot/internal/session"
	"docpilot/pkg/logger"
	"docpilot/pkg/ratelimiter"
)

// Chunking defaults, in characters.
const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// RagService is the top-level query orchestrator behind the HTTP boundary.
// Model selection is the only piece of shared mutable state; session scope
// and model choice are threaded through every call as arguments.
type RagService struct {
	log       *logger.Logger
	indexing  *pipeline.IndexingPipeline
	retrieval *pipeline.RetrievalPipeline
	ledger    *retention.Ledger
	sessions  *session.Registry
	limiter   ratelimiter.RateLimiter
	samples   string

	rateLimit  int
	rateWindow time.Duration

	mu      sync.RWMutex
	gateway interfaces.LLM
	active  llm.ModelSpec

	now func() time.Time
}

// New wires the full pipeline from configuration. The retention sweep runs
// once here, synchronously; there is no background timer.
func New(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*RagService, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	gateway, spec, err := llm.NewGateway(ctx, cfg.LLM.DefaultModel)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{cfg.Storage.LedgerPath, cfg.Storage.RateWindowPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory for %s: %w", path, err)
		}
	}
	window, err := cfg.RateWindow()
	if err != nil {
		return nil, err
	}
	limiter := ratelimiter.NewSlidingWindowLog(cfg.Storage.RateWindowPath, cfg.RateLimit.Limit, window)

	return newService(cfg, log, embedder, store, gateway, spec, limiter, time.Now)
}

// newService assembles a RagService from ready components and runs the
// startup sweep. Exposed within the package so tests can inject fakes.
func newService(
	cfg *config.AppConfig,
	log *logger.Logger,
	embedder interfaces.EmbeddingModel,
	store interfaces.VectorStore,
	gateway interfaces.LLM,
	spec llm.ModelSpec,
	limiter ratelimiter.RateLimiter,
	now func() time.Time,
) (*RagService, error) {
	splitter, err := splitters.NewRecursiveCharacterSplitter(defaultChunkSize, defaultChunkOverlap)
	if err != nil {
		return nil, err
	}
	window, err := cfg.RateWindow()
	if err != nil {
		return nil, err
	}
	ledger := retention.NewLedger(cfg.Storage.LedgerPath, log)

	s := &RagService{
		log:        log,
		indexing:   pipeline.NewIndexingPipeline(splitter, embedder, store, ledger, log),
		retrieval:  pipeline.NewRetrievalPipeline(embedder, store, log),
		ledger:     ledger,
		sessions:   session.NewRegistry(ledger, store, log),
		limiter:    limiter,
		samples:    cfg.Storage.SamplesDir,
		rateLimit:  cfg.RateLimit.Limit,
		rateWindow: window,
		gateway:    gateway,
		active:     spec,
		now:        now,
	}

	if err := ledger.Sweep(context.Background(), store, s.now()); err != nil {
		// The sweep retries on the next start; an expired leftover is not
		// worth refusing to serve.
		log.Warn(fmt.Sprintf("Startup retention sweep was incomplete: %v", err))
	}
	return s, nil
}

func buildEmbedder(cfg *config.AppConfig) (interfaces.EmbeddingModel, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "openai":
		return embeddings.NewOpenAIModel(os.Getenv("OPENAI_API_KEY"), e.Model, e.BaseURL)
	case "ollama":
		return embeddings.NewOllamaModel(e.Model, e.BaseURL)
	case "huggingface":
		return embeddings.NewHuggingFaceModel(os.Getenv("HF_API_KEY"), e.Model, e.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", e.Provider)
	}
}

func buildStore(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (interfaces.VectorStore, error) {
	switch cfg.VectorStore.Driver {
	case "milvus":
		m := cfg.VectorStore.Milvus
		return vectorstore.NewMilvusStore(ctx, m.Address, m.Collection, m.Dim, log)
	case "memory":
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store driver %q", cfg.VectorStore.Driver)
	}
}

// gatewayRef snapshots the active backend. In-flight calls keep the
// instance they captured across a model switch.
func (s *RagService) gatewayRef() (interfaces.LLM, llm.ModelSpec) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway, s.active
}

// SelectModel validates modelKey, builds its backend, and atomically makes
// it the active selection for subsequent queries. Unknown keys and missing
// credentials fail with a configuration error and leave the current
// selection untouched.
func (s *RagService) SelectModel(ctx context.Context, modelKey string) (string, error) {
	gateway, spec, err := llm.NewGateway(ctx, modelKey)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.gateway = gateway
	s.active = spec
	s.mu.Unlock()
	s.log.Info(fmt.Sprintf("Switched active model to %s", spec.DisplayName))
	return spec.DisplayName, nil
}

// ActiveModel returns the current selection.
func (s *RagService) ActiveModel() llm.ModelSpec {
	_, spec := s.gatewayRef()
	return spec
}

// IngestText chunks and indexes raw text under the given source name.
func (s *RagService) IngestText(ctx context.Context, sourceID, text, sessionToken string, isSample bool) (int, error) {
	doc := &schema.Document{
		Text: text,
		Metadata: map[string]interface{}{
			schema.MetadataKeySource: sourceID,
		},
	}
	return s.indexing.Ingest(ctx, doc, sessionToken, isSample, s.now())
}

// IngestFile loads a PDF, DOCX or TXT file and indexes its content.
func (s *RagService) IngestFile(ctx context.Context, path, sessionToken string, isSample bool) (int, error) {
	loader, err := loaders.ForPath(path)
	if err != nil {
		return 0, err
	}
	docs, err := loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, doc := range docs {
		n, err := s.indexing.Ingest(ctx, doc, sessionToken, isSample, s.now())
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// LoadSamples ingests every .txt sample of the named vertical as a shared,
// never-expiring sample document. It returns the file names loaded and the
// total chunk count.
func (s *RagService) LoadSamples(ctx context.Context, vertical string) ([]string, int, error) {
	pattern := filepath.Join(s.samples, strings.ToLower(vertical), "*.txt")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, 0, err
	}
	if len(paths) == 0 {
		return nil, 0, fmt.Errorf("no sample documents found for %q", vertical)
	}

	var names []string
	total := 0
	for _, path := range paths {
		n, err := s.IngestFile(ctx, path, schema.SampleOwner, true)
		if err != nil {
			return names, total, err
		}
		names = append(names, filepath.Base(path))
		total += n
	}
	return names, total, nil
}

// Ask answers the question using the chunks visible to the session. It
// always returns a user-facing string: every internal error is caught here
// and converted, never propagated.
func (s *RagService) Ask(ctx context.Context, question, sessionToken string, visibleDocs []string) string {
	answer, err := s.answer(ctx, question, sessionToken, visibleDocs, false)
	if err != nil {
		s.log.Error(fmt.Sprintf("Query failed: %v", err))
		return errorMessage(err)
	}
	return answer.text
}

// AskStream is the incremental variant of Ask. Every element of the
// returned channel is the accumulated answer so far; the final element is
// the complete answer. Early terminal outcomes (guidance, rate limit,
// errors) arrive as a single element.
func (s *RagService) AskStream(ctx context.Context, question, sessionToken string, visibleDocs []string) <-chan string {
	out := make(chan string, 1)

	result, err := s.answer(ctx, question, sessionToken, visibleDocs, true)
	if err != nil {
		s.log.Error(fmt.Sprintf("Query failed: %v", err))
		out <- errorMessage(err)
		close(out)
		return out
	}
	if result.stream == nil {
		out <- result.text
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for inc := range result.stream {
			select {
			case out <- inc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// answerResult is either a terminal text or a live stream, never both.
type answerResult struct {
	text   string
	stream <-chan string
}

// answer runs the query pipeline: rate gate, visible-set short circuit,
// retrieval, session filtering, prompt assembly, generation. No step is
// retried.
func (s *RagService) answer(ctx context.Context, question, sessionToken string, visibleDocs []string, streaming bool) (answerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return answerResult{text: GuidanceEmptyQuestion}, nil
	}

	if !s.limiter.Allow() {
		return answerResult{}, &RateLimitError{Limit: s.rateLimit, Window: s.rateWindow}
	}

	// With nothing visible there is nothing to retrieve; the index and the
	// model are never touched.
	if len(visibleDocs) == 0 {
		return answerResult{text: GuidanceNoDocuments}, nil
	}

	retrieved, err := s.retrieval.Run(ctx, question, pipeline.DefaultTopK)
	if err != nil {
		return answerResult{}, err
	}
	visible := pipeline.FilterVisible(retrieved, sessionToken)
	if len(visible) == 0 {
		return answerResult{text: FallbackNoRelevant}, nil
	}

	gateway, _ := s.gatewayRef()
	qa := pipeline.NewQAPipeline(gateway, s.log)
	if streaming {
		stream, err := qa.RunStream(ctx, question, visible)
		if err != nil {
			return answerResult{}, err
		}
		return answerResult{stream: stream}, nil
	}
	text, err := qa.Run(ctx, question, visible)
	if err != nil {
		return answerResult{}, err
	}
	return answerResult{text: text}, nil
}

// ResolveSession maps a client token to an effective session.
func (s *RagService) ResolveSession(token string) session.Resolution {
	return s.sessions.Resolve(token, s.now())
}

// ListDocuments returns the session's own documents, newest first.
func (s *RagService) ListDocuments(sessionToken string) []retention.DocumentInfo {
	return s.ledger.DocumentsForSession(sessionToken)
}

// RemoveDocument removes filename from the session's view and, when owned
// by the session, from the index and ledger.
func (s *RagService) RemoveDocument(ctx context.Context, sessionToken, filename string, visible []string) ([]string, bool, string) {
	return s.sessions.Remove(ctx, sessionToken, filename, visible)
}
