package rag

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the ingestion chunk width in characters.
const DefaultChunkSize = 1000

// ChunkingConfig controls SplitText.
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// DefaultChunkingConfig returns fixed 1000-character windows without overlap.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{ChunkSize: DefaultChunkSize}
}

func (c ChunkingConfig) normalized() ChunkingConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 0
	}
	return c
}

// SplitText cuts text into fixed-width character windows. Windows are trimmed
// and empty windows are dropped. Widths count runes, not bytes.
func SplitText(text string, cfg ChunkingConfig) []string {
	cfg = cfg.normalized()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if !utf8.ValidString(text) {
		runes = []rune(strings.ToValidUTF8(text, ""))
	}

	step := cfg.ChunkSize - cfg.ChunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Chunk is one piece of a document ready for embedding.
type Chunk struct {
	Text   string
	Source string
	Index  int
}

// ChunkDocuments splits every document and tags chunks with their source.
func ChunkDocuments(docs []Document, cfg ChunkingConfig) []Chunk {
	var out []Chunk
	for _, doc := range docs {
		source := doc.Source
		if source == "" {
			source = doc.ID
		}
		for i, text := range SplitText(doc.Content, cfg) {
			out = append(out, Chunk{Text: text, Source: source, Index: i})
		}
	}
	return out
}
