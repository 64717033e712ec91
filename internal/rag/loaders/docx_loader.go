package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/unidoc/unioffice/v2/document"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
)

// DocxLoader implements the Loader interface for Word (.docx) files.
type DocxLoader struct{}

// NewDocxLoader creates a new DocxLoader.
func NewDocxLoader() *DocxLoader {
	return &DocxLoader{}
}

// Load reads a .docx file and returns its paragraph text, joined by
// newlines, as a single Document.
func (l *DocxLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	doc, err := document.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx %s: %w", path, err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}

	result := &schema.Document{
		ID:   uuid.New().String(),
		Text: sb.String(),
		Metadata: map[string]interface{}{
			schema.MetadataKeySource: filepath.Base(path),
		},
	}
	return []*schema.Document{result}, nil
}

var _ interfaces.Loader = (*DocxLoader)(nil)
