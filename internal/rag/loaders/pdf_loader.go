package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
)

// PageMarkerFormat is the literal marker line inserted before each page's
// text. Citation extraction recovers page numbers by matching this pattern
// in chunk bodies; there is no structured page field on every chunk.
const PageMarkerFormat = "---- Page %d ----"

// PdfLoader implements the Loader interface for PDF files.
type PdfLoader struct{}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader() *PdfLoader {
	return &PdfLoader{}
}

// Load extracts the text of every page into a single Document, prefixing
// each page with a 1-based page marker line so page provenance survives
// chunking.
func (l *PdfLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(PageMarkerFormat, i))
		sb.WriteString("\n")
		sb.WriteString(text)
	}

	doc := &schema.Document{
		ID:   uuid.New().String(),
		Text: sb.String(),
		Metadata: map[string]interface{}{
			schema.MetadataKeySource:    filepath.Base(path),
			schema.MetadataKeyPageLabel: "1",
		},
	}
	return []*schema.Document{doc}, nil
}

var _ interfaces.Loader = (*PdfLoader)(nil)
