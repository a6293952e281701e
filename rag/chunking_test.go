package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		cfg  ChunkingConfig
		want []string
	}{
		{name: "empty", text: "", cfg: DefaultChunkingConfig(), want: nil},
		{name: "whitespace only", text: " \n\t ", cfg: DefaultChunkingConfig(), want: nil},
		{name: "short text trimmed", text: "  hello  ", cfg: DefaultChunkingConfig(), want: []string{"hello"}},
		{name: "fixed windows", text: "abcdefgh", cfg: ChunkingConfig{ChunkSize: 3}, want: []string{"abc", "def", "gh"}},
		{name: "blank window dropped", text: "ab    cd", cfg: ChunkingConfig{ChunkSize: 3}, want: []string{"ab", "cd"}},
		{name: "overlap", text: "abcdef", cfg: ChunkingConfig{ChunkSize: 4, ChunkOverlap: 2}, want: []string{"abcd", "cdef"}},
		{name: "counts runes", text: "日本語テキスト", cfg: ChunkingConfig{ChunkSize: 3}, want: []string{"日本語", "テキス", "ト"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.text, tt.cfg))
		})
	}
}

func TestSplitText_DefaultWidth(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := SplitText(text, ChunkingConfig{})

	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 500)
}

func TestSplitText_InvalidOverlapIgnored(t *testing.T) {
	chunks := SplitText("abcdef", ChunkingConfig{ChunkSize: 2, ChunkOverlap: 5})
	assert.Equal(t, []string{"ab", "cd", "ef"}, chunks)
}

func TestChunkDocuments(t *testing.T) {
	docs := []Document{
		{ID: "a.md", Content: "abcdef", Source: "a.md"},
		{ID: "b.txt", Content: "xy"},
		{ID: "empty.log", Content: "   "},
	}

	chunks := ChunkDocuments(docs, ChunkingConfig{ChunkSize: 4})

	assert.Equal(t, []Chunk{
		{Text: "abcd", Source: "a.md", Index: 0},
		{Text: "ef", Source: "a.md", Index: 1},
		{Text: "xy", Source: "b.txt", Index: 0},
	}, chunks)
}

func TestSplitText_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-z ]{0,300}`).Draw(t, "text")
		size := rapid.IntRange(1, 50).Draw(t, "size")

		chunks := SplitText(text, ChunkingConfig{ChunkSize: size})
		for _, c := range chunks {
			if c == "" || c != strings.TrimSpace(c) {
				t.Fatalf("chunk %q is empty or untrimmed", c)
			}
			if len([]rune(c)) > size {
				t.Fatalf("chunk %q longer than %d", c, size)
			}
		}
		joined := strings.ReplaceAll(strings.Join(chunks, ""), " ", "")
		if joined != strings.ReplaceAll(text, " ", "") {
			t.Fatalf("chunks lost content: %q vs %q", joined, text)
		}
	})
}
