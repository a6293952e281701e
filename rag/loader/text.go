package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/ragflow/rag"
)

// TextLoader loads a plain text file as a single Document. Invalid UTF-8
// sequences are dropped.
type TextLoader struct {
	exts []string
}

// NewTextLoader creates a TextLoader for .txt, .md, .py and .log files.
func NewTextLoader() *TextLoader {
	return &TextLoader{exts: []string{".txt", ".md", ".py", ".log"}}
}

func (l *TextLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}

	return []rag.Document{{
		ID:      source,
		Content: strings.ToValidUTF8(string(data), ""),
		Source:  source,
	}}, nil
}

func (l *TextLoader) SupportedTypes() []string {
	return append([]string(nil), l.exts...)
}
