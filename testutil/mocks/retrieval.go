// MockEmbedder 与 MockVectorIndex 是检索协作方的测试模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ragflow/rag"
)

// MockEmbedder 返回固定维度的向量
type MockEmbedder struct {
	mu      sync.Mutex
	dims    int
	err     error
	queries []string
}

// NewMockEmbedder 创建 dims 维的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 1536
	}
	return &MockEmbedder{dims: dims}
}

// WithError 设置返回错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	v := make([]float32, m.dims)
	v[0] = 1
	return v, nil
}

func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Queries 返回收到的全部输入文本
func (m *MockEmbedder) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// SearchCall 记录一次 Search 调用
type SearchCall struct {
	Filter rag.Filter
	TopK   int
}

// MockVectorIndex 返回预置命中并记录调用
type MockVectorIndex struct {
	mu       sync.Mutex
	hits     []rag.Hit
	err      error
	searches []SearchCall
	points   []rag.Point
}

// NewMockVectorIndex 创建返回 hits 的 MockVectorIndex
func NewMockVectorIndex(hits ...rag.Hit) *MockVectorIndex {
	return &MockVectorIndex{hits: hits}
}

// WithError 设置 Search 错误
func (m *MockVectorIndex) WithError(err error) *MockVectorIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockVectorIndex) EnsureCollection(context.Context, int) error { return nil }

func (m *MockVectorIndex) Upsert(_ context.Context, points []rag.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, points...)
	return nil
}

func (m *MockVectorIndex) Search(_ context.Context, _ []float32, filter rag.Filter, topK int) ([]rag.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, SearchCall{Filter: filter, TopK: topK})
	if m.err != nil {
		return nil, m.err
	}
	return append([]rag.Hit(nil), m.hits...), nil
}

func (m *MockVectorIndex) Ping(context.Context) error { return nil }

// Searches 返回全部 Search 调用
func (m *MockVectorIndex) Searches() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.searches...)
}

// Points 返回写入的点
func (m *MockVectorIndex) Points() []rag.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]rag.Point(nil), m.points...)
}
