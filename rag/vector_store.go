package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Document is a piece of source text before it is chunked and embedded.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Point is one embedded chunk stored in a vector index.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Text    string    `json:"text"`
	Source  string    `json:"source,omitempty"`
	Project string    `json:"project"`
}

// Hit is one search result.
type Hit struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

// Formatted renders the hit as "[source] text", or the bare text when the
// point carries no source.
func (h Hit) Formatted() string {
	text := strings.TrimSpace(h.Text)
	if h.Source == "" {
		return text
	}
	return fmt.Sprintf("[%s] %s", h.Source, text)
}

// ContextLine renders the hit as a prompt context line.
func (h Hit) ContextLine() string {
	return fmt.Sprintf("DOC: %s (score=%.3f)", h.Formatted(), h.Score)
}

// Filter restricts a search. An empty Project matches every point.
type Filter struct {
	Project string
}

// VectorIndex is a similarity-search backend.
type VectorIndex interface {
	// EnsureCollection creates the collection when it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error
	// Upsert writes points, replacing any with the same ID.
	Upsert(ctx context.Context, points []Point) error
	// Search returns at most topK hits matching filter, best first.
	Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// SortHits orders hits by descending score, keeping backend order for ties.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
