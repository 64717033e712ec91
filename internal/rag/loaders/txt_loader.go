package loaders

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
)

// TxtLoader implements the Loader interface for plain text files.
type TxtLoader struct{}

// NewTxtLoader creates a new TxtLoader.
func NewTxtLoader() *TxtLoader {
	return &TxtLoader{}
}

// Load reads a text file and returns it as a single Document.
func (l *TxtLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &schema.Document{
		ID:   uuid.New().String(),
		Text: string(content),
		Metadata: map[string]interface{}{
			schema.MetadataKeySource: filepath.Base(path),
		},
	}
	return []*schema.Document{doc}, nil
}

var _ interfaces.Loader = (*TxtLoader)(nil)
