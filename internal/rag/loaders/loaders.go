package loaders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"docpilot/internal/rag/interfaces"
)

// ForPath returns the loader matching the file's extension, falling back to
// content sniffing when the extension is missing or unknown. Only PDF, DOCX
// and plain text are supported.
func ForPath(path string) (interfaces.Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return NewPdfLoader(), nil
	case ".docx":
		return NewDocxLoader(), nil
	case ".txt", ".md":
		return NewTxtLoader(), nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type of %s: %w", path, err)
	}
	switch {
	case mt.Is("application/pdf"):
		return NewPdfLoader(), nil
	case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return NewDocxLoader(), nil
	case strings.HasPrefix(mt.String(), "text/"):
		return NewTxtLoader(), nil
	}
	return nil, fmt.Errorf("unsupported file format %q: please upload PDF, DOCX, or TXT files", mt.String())
}
