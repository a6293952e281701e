package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/internal/tlsutil"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// ZepConfig configures ZepStore.
type ZepConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ZepStore implements Store on the Zep v2 REST API. The session key doubles
// as the Zep user id.
type ZepStore struct {
	cfg     ZepConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewZepStore creates a Zep-backed Store.
func NewZepStore(cfg ZepConfig, logger *zap.Logger) *ZepStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ZepStore{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "zep_memory")),
	}
}

type zepMessage struct {
	Role     string `json:"role"`
	RoleType string `json:"role_type"`
	Content  string `json:"content"`
}

// EnsureSession creates the user and the session. Conflicts mean both exist.
func (s *ZepStore) EnsureSession(ctx context.Context, project, sessionID string) error {
	key := SessionKey(project, sessionID)

	steps := []struct {
		path string
		body any
	}{
		{"/api/v2/users", map[string]string{"user_id": key}},
		{"/api/v2/sessions", map[string]string{"session_id": key, "user_id": key}},
	}
	for _, st := range steps {
		status, err := s.do(ctx, http.MethodPost, st.path, st.body, nil)
		if err != nil && status != http.StatusConflict && status != http.StatusBadRequest {
			return types.NewError(types.ErrMemoryRegistration, "register zep session").
				WithCause(err).
				WithProvider("zep")
		}
	}
	return nil
}

func (s *ZepStore) QueryRecent(ctx context.Context, project, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	key := SessionKey(project, sessionID)
	path := "/api/v2/sessions/" + url.PathEscape(key) + "/memory?lastn=" + strconv.Itoa(limit)

	var resp struct {
		Messages []zepMessage `json:"messages"`
	}
	status, err := s.do(ctx, http.MethodGet, path, nil, &resp)
	if status == http.StatusNotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrMemory, "query zep memory").WithCause(err).WithProvider("zep")
	}

	out := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if strings.TrimSpace(m.Content) != "" {
			out = append(out, m.Content)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *ZepStore) AppendExchange(ctx context.Context, project, sessionID, userText, assistantText string) error {
	key := SessionKey(project, sessionID)
	body := map[string]any{
		"messages": []zepMessage{
			{Role: "user", RoleType: "user", Content: userText},
			{Role: "assistant", RoleType: "assistant", Content: assistantText},
		},
	}
	if _, err := s.do(ctx, http.MethodPost, "/api/v2/sessions/"+url.PathEscape(key)+"/memory", body, nil); err != nil {
		return types.NewError(types.ErrMemory, "append zep memory").WithCause(err).WithProvider("zep")
	}
	s.logger.Debug("exchange stored", zap.String("session", key))
	return nil
}

func (s *ZepStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

func (s *ZepStore) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Api-Key "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return resp.StatusCode, fmt.Errorf("zep %s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode zep response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
