package splitters

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
)

// defaultSeparators orders the split boundaries from most to least
// preferred: paragraph, line, word, then raw characters. A chunk never
// splits mid-word while a higher-priority boundary is available.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveCharacterSplitter splits documents into overlapping fixed-size
// chunks, preferring natural text boundaries.
type RecursiveCharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

// NewRecursiveCharacterSplitter creates a splitter with the given target
// chunk size and overlap, both measured in characters.
func NewRecursiveCharacterSplitter(chunkSize, chunkOverlap int) (*RecursiveCharacterSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	return &RecursiveCharacterSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// Split splits each document into chunks. Every chunk inherits its parent's
// metadata and records its 1-based position under chunk_number. Empty input
// text yields zero chunks, not an error.
func (s *RecursiveCharacterSplitter) Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	var chunks []*schema.Document
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		for i, piece := range s.splitText(doc.Text, s.separators) {
			chunk := &schema.Document{
				ID:       uuid.New().String(),
				Text:     piece,
				Metadata: copyMetadata(doc.Metadata),
			}
			chunk.Metadata[schema.MetadataKeyChunkNumber] = i + 1
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// splitText breaks text on the first separator present in it, recursing
// into lower-priority separators for any fragment still over the limit.
func (s *RecursiveCharacterSplitter) splitText(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, cand := range separators {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return s.splitByWindow(text)
	}

	var splits []string
	for _, piece := range strings.Split(text, sep) {
		if piece != "" {
			splits = append(splits, piece)
		}
	}

	var final []string
	var pending []string
	for _, piece := range splits {
		if len(piece) < s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			final = append(final, s.merge(pending, sep)...)
			pending = nil
		}
		final = append(final, s.splitText(piece, rest)...)
	}
	if len(pending) > 0 {
		final = append(final, s.merge(pending, sep)...)
	}
	return final
}

// merge greedily packs fragments into chunks no longer than ChunkSize,
// retaining a tail of fragments within the overlap budget so consecutive
// chunks share context.
func (s *RecursiveCharacterSplitter) merge(splits []string, sep string) []string {
	sepLen := len(sep)
	var docs []string
	var current []string
	total := 0

	for _, piece := range splits {
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+len(piece)+extra > s.ChunkSize && len(current) > 0 {
			docs = append(docs, strings.Join(current, sep))
			for total > s.ChunkOverlap || (total+len(piece)+extra > s.ChunkSize && total > 0) {
				drop := len(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
				extra = 0
				if len(current) > 0 {
					extra = sepLen
				}
			}
		}
		current = append(current, piece)
		total += len(piece)
		if len(current) > 1 {
			total += sepLen
		}
	}
	if len(current) > 0 {
		docs = append(docs, strings.Join(current, sep))
	}
	return docs
}

// splitByWindow is the character-level fallback for runs of text with no
// usable boundary: fixed windows advancing by ChunkSize-ChunkOverlap runes.
func (s *RecursiveCharacterSplitter) splitByWindow(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.ChunkOverlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	return out
}

var _ interfaces.Splitter = (*RecursiveCharacterSplitter)(nil)
