package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/pkg/logger"
)

// promptTemplate is the fixed instruction template. Context, the sources
// list, and the verbatim question are interpolated; the model is required
// to cite inline and to close with a Sources Referenced section.
const promptTemplate = `Use the following pieces of retrieved context to answer the question at the end.
You are a helpful assistant: if the context does not contain the answer, say that you don't know.
Do not make up information. Use only factual information from the context.
Cite every claim inline in the form (Source: filename, Page X), using the page markers found in the context when present.
End your answer with a "Sources Referenced" section listing each source you used.

Context:
%s

Sources: %s

Question: %s

Answer:`

// FallbackEmptyAnswer replaces a blank model response so callers never see
// an empty answer.
const FallbackEmptyAnswer = "I'm sorry, I was unable to produce an answer to that question. Please try again."

// QAPipeline builds the citation prompt and invokes the model gateway.
type QAPipeline struct {
	llm interfaces.LLM
	log *logger.Logger
}

// NewQAPipeline creates a new QAPipeline.
func NewQAPipeline(llm interfaces.LLM, log *logger.Logger) *QAPipeline {
	return &QAPipeline{llm: llm, log: log}
}

// BuildPrompt assembles the instruction prompt: chunk bodies joined by
// blank lines as the context block, the deduplicated sorted set of source
// basenames as the sources list, and the question verbatim.
func BuildPrompt(question string, docs []*schema.Document) string {
	bodies := make([]string, 0, len(docs))
	seen := make(map[string]bool)
	var sources []string
	for _, doc := range docs {
		bodies = append(bodies, doc.Text)
		name := filepath.Base(doc.Source())
		if name != "" && name != "." && !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}
	sort.Strings(sources)
	return fmt.Sprintf(promptTemplate, strings.Join(bodies, "\n\n"), strings.Join(sources, ", "), question)
}

// Run builds the prompt and returns the model's full answer. A blank
// response becomes the fallback apology, never an empty string.
func (p *QAPipeline) Run(ctx context.Context, question string, docs []*schema.Document) (string, error) {
	prompt := BuildPrompt(question, docs)
	p.log.Info(fmt.Sprintf("Generating answer from %d chunks", len(docs)))

	answer, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return FallbackEmptyAnswer, nil
	}
	return answer, nil
}

// RunStream builds the prompt and streams progressively accumulated answer
// text. Each element is the answer so far; the final element is complete.
func (p *QAPipeline) RunStream(ctx context.Context, question string, docs []*schema.Document) (<-chan string, error) {
	prompt := BuildPrompt(question, docs)
	p.log.Info(fmt.Sprintf("Streaming answer from %d chunks", len(docs)))

	stream, err := p.llm.GenerateStream(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	return stream, nil
}
