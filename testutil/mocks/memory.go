// MockMemoryStore 是 memory.Store 的测试模拟实现。
package mocks

import (
	"context"
	"sync"
)

// Exchange 记录一次 AppendExchange 调用
type Exchange struct {
	Project   string
	SessionID string
	User      string
	Assistant string
}

// MockMemoryStore 返回预置片段并记录写入
type MockMemoryStore struct {
	mu sync.Mutex

	snippets    []string
	queryErr    error
	registerErr error
	appendErr   error

	registrations []string
	queries       []int
	exchanges     []Exchange
}

// NewMockMemoryStore 创建返回 snippets 的 MockMemoryStore
func NewMockMemoryStore(snippets ...string) *MockMemoryStore {
	return &MockMemoryStore{snippets: snippets}
}

// WithQueryError 设置 QueryRecent 错误
func (m *MockMemoryStore) WithQueryError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
	return m
}

// WithRegisterError 设置 EnsureSession 错误
func (m *MockMemoryStore) WithRegisterError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerErr = err
	return m
}

// WithAppendError 设置 AppendExchange 错误
func (m *MockMemoryStore) WithAppendError(err error) *MockMemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

func (m *MockMemoryStore) EnsureSession(_ context.Context, project, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, project+"::"+sessionID)
	return m.registerErr
}

func (m *MockMemoryStore) QueryRecent(_ context.Context, _, _ string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, limit)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return append([]string(nil), m.snippets...), nil
}

func (m *MockMemoryStore) AppendExchange(_ context.Context, project, sessionID, userText, assistantText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.exchanges = append(m.exchanges, Exchange{
		Project:   project,
		SessionID: sessionID,
		User:      userText,
		Assistant: assistantText,
	})
	return nil
}

func (m *MockMemoryStore) Ping(context.Context) error { return nil }

// Exchanges 返回已写入的交换
func (m *MockMemoryStore) Exchanges() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Exchange(nil), m.exchanges...)
}

// Registrations 返回 EnsureSession 收到的会话键
func (m *MockMemoryStore) Registrations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.registrations...)
}

// QueryLimits 返回每次 QueryRecent 的 limit 参数
func (m *MockMemoryStore) QueryLimits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.queries...)
}

// CallCount 返回全部调用次数
func (m *MockMemoryStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registrations) + len(m.queries) + len(m.exchanges)
}
