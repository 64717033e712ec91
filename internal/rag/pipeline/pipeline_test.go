package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpilot/internal/rag/schema"
	"docpilot/internal/rag/storages/vectorstore"
	"docpilot/internal/retention"
	"docpilot/internal/session"
	"docpilot/pkg/logger"
)

// letterFrequencyEmbedder maps text to a deterministic 26-dimensional
// letter-frequency vector, so similar texts land near each other without a
// real model.
type letterFrequencyEmbedder struct{}

func (letterFrequencyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		out[i] = vec
	}
	return out, nil
}

// scriptedLLM returns canned output and records the prompt it saw.
type scriptedLLM struct {
	answer string
	chunks []string
	prompt string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	s.prompt = prompt
	out := make(chan string, len(s.chunks))
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func doc(text, source, owner string, isSample bool) *schema.Document {
	d := &schema.Document{
		Text: text,
		Metadata: map[string]interface{}{
			schema.MetadataKeySource: source,
		},
	}
	d.Tag(owner, isSample, time.Now())
	return d
}

func TestBuildPromptContainsContextSourcesAndQuestion(t *testing.T) {
	docs := []*schema.Document{
		doc("The term is 24 months.", "contract.pdf", "tok", false),
		doc("Uptime target is 99.5%.", "contract.pdf", "tok", false),
		doc("Payment is due in 30 days.", "invoice.txt", "tok", false),
	}

	prompt := BuildPrompt("What is the contract term?", docs)

	assert.Contains(t, prompt, "The term is 24 months.")
	assert.Contains(t, prompt, "Uptime target is 99.5%.")
	assert.Contains(t, prompt, "Payment is due in 30 days.")
	assert.Contains(t, prompt, "Question: What is the contract term?")
	// Sources are deduplicated and sorted.
	assert.Contains(t, prompt, "Sources: contract.pdf, invoice.txt")
	assert.Contains(t, prompt, "Sources Referenced")
}

func TestBuildPromptJoinsChunksWithBlankLines(t *testing.T) {
	docs := []*schema.Document{
		doc("first chunk", "a.txt", "tok", false),
		doc("second chunk", "a.txt", "tok", false),
	}
	prompt := BuildPrompt("q", docs)
	assert.Contains(t, prompt, "first chunk\n\nsecond chunk")
}

func TestQARunReplacesBlankAnswerWithFallback(t *testing.T) {
	llm := &scriptedLLM{answer: "   \n"}
	qa := NewQAPipeline(llm, logger.New("test"))

	answer, err := qa.Run(context.Background(), "anything", []*schema.Document{doc("ctx", "a.txt", "tok", false)})
	require.NoError(t, err)
	assert.Equal(t, FallbackEmptyAnswer, answer)
}

func TestQARunStreamPassesAccumulations(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"The", "The answer", "The answer is 42."}}
	qa := NewQAPipeline(llm, logger.New("test"))

	stream, err := qa.RunStream(context.Background(), "q", []*schema.Document{doc("ctx", "a.txt", "tok", false)})
	require.NoError(t, err)

	var got []string
	for msg := range stream {
		got = append(got, msg)
	}
	assert.Equal(t, []string{"The", "The answer", "The answer is 42."}, got)
}

func TestFilterVisibleEnforcesSessionScope(t *testing.T) {
	mine := doc("my chunk", "mine.txt", "tok-a", false)
	theirs := doc("their chunk", "theirs.txt", "tok-b", false)
	sample := doc("sample chunk", "nda.txt", "ignored", true)

	visible := FilterVisible([]*schema.Document{mine, theirs, sample}, "tok-a")
	require.Len(t, visible, 2)
	assert.Same(t, mine, visible[0])
	assert.Same(t, sample, visible[1])
}

func TestFilterVisibleEmptyTokenSeesOnlySamples(t *testing.T) {
	owned := doc("owned chunk", "mine.txt", "tok-a", false)
	sample := doc("sample chunk", "nda.txt", "ignored", true)

	visible := FilterVisible([]*schema.Document{owned, sample}, "")
	require.Len(t, visible, 1)
	assert.Same(t, sample, visible[0])
}

func TestIndexThenRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	log := logger.New("test")
	store := vectorstore.NewMemoryStore()
	embedder := letterFrequencyEmbedder{}
	ledger := retention.NewLedger(filepath.Join(t.TempDir(), "ledger.json"), log)

	splitter := fixedSplitter{}
	indexing := NewIndexingPipeline(splitter, embedder, store, ledger, log)
	retrieval := NewRetrievalPipeline(embedder, store, log)

	token := session.Mint(time.Now())
	source := doc("zzzz zzzz zzzz\n\naaaa aaaa aaaa", "mix.txt", "", false)
	chunks, err := indexing.Ingest(ctx, source, token, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)

	// A query of all z's must rank the z chunk first.
	results, err := retrieval.Run(ctx, "zzzz", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "zzzz")
	assert.Equal(t, token, results[0].Owner())

	// Ingestion also recorded the document for the session.
	listed := ledger.DocumentsForSession(token)
	require.Len(t, listed, 1)
	assert.Equal(t, "mix.txt", listed[0].Filename)
}

func TestIngestEmptyDocumentIndexesNothing(t *testing.T) {
	ctx := context.Background()
	log := logger.New("test")
	store := vectorstore.NewMemoryStore()
	ledger := retention.NewLedger(filepath.Join(t.TempDir(), "ledger.json"), log)
	indexing := NewIndexingPipeline(fixedSplitter{}, letterFrequencyEmbedder{}, store, ledger, log)

	chunks, err := indexing.Ingest(ctx, doc("   ", "empty.txt", "", false), "tok", false, time.Now())
	require.NoError(t, err)
	assert.Zero(t, chunks)
	assert.Zero(t, store.Len())
	assert.Empty(t, ledger.DocumentsForSession("tok"))
}

// fixedSplitter splits on blank lines without size limits, keeping tests
// independent of chunking parameters.
type fixedSplitter struct{}

func (fixedSplitter) Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		for i, piece := range strings.Split(d.Text, "\n\n") {
			md := make(map[string]interface{}, len(d.Metadata)+1)
			for k, v := range d.Metadata {
				md[k] = v
			}
			md[schema.MetadataKeyChunkNumber] = i + 1
			out = append(out, &schema.Document{Text: piece, Metadata: md})
		}
	}
	return out, nil
}
