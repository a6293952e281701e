package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/internal/tlsutil"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant VectorIndex implementation.
//
// Points carry the payload {text, source, project}; searches filter on
// payload.project with an exact match.
type QdrantConfig struct {
	URL        string        `json:"url" yaml:"url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Collection string        `json:"collection" yaml:"collection"`
	Distance   string        `json:"distance,omitempty" yaml:"distance,omitempty"` // Cosine (default), Dot, Euclid
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Wait       *bool         `json:"wait,omitempty" yaml:"wait,omitempty"` // Wait for upsert completion (default true)
}

// QdrantStore implements VectorIndex using Qdrant's REST API.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantStore creates a Qdrant-backed VectorIndex.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "project_docs"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Wait == nil {
		wait := true
		cfg.Wait = &wait
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

// Collection returns the collection name.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix
}

// EnsureCollection creates the collection if it is missing. A successful
// check is remembered; failures are retried on the next call.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return types.NewError(types.ErrVectorIndex, "vector size must be > 0")
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	status, err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": s.cfg.Distance,
			},
		}
		// Qdrant returns 409 if another writer created it first.
		status, err = s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil)
		if err != nil && status != http.StatusConflict {
			return err
		}
		s.logger.Info("qdrant collection created",
			zap.String("collection", s.cfg.Collection),
			zap.Int("dimensions", dimensions),
		)
	}

	s.ensured = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	type qdrantPoint struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	out := make([]qdrantPoint, 0, len(points))
	for i, p := range points {
		if p.ID == "" {
			return types.Errorf(types.ErrVectorIndex, "point[%d] has empty id", i)
		}
		if len(p.Vector) == 0 {
			return types.Errorf(types.ErrVectorIndex, "point[%d] has no vector", i)
		}
		out = append(out, qdrantPoint{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: map[string]any{
				"text":    p.Text,
				"source":  p.Source,
				"project": p.Project,
			},
		})
	}

	path := s.collectionPath("/points")
	if *s.cfg.Wait {
		path += "?wait=true"
	}
	if _, err := s.do(ctx, http.MethodPut, path, map[string]any{"points": out}, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(points)))
	return nil
}

type qdrantFieldCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantFieldCondition `json:"must"`
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
	WithPayload bool          `json:"with_payload"`
	WithVector  bool          `json:"with_vector"`
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewError(types.ErrVectorIndex, "query vector is required")
	}

	req := qdrantSearchRequest{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
	}
	if filter.Project != "" {
		cond := qdrantFieldCondition{Key: "project"}
		cond.Match.Value = filter.Project
		req.Filter = &qdrantFilter{Must: []qdrantFieldCondition{cond}}
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{
			Text:   strings.TrimSpace(payloadString(r.Payload, "text")),
			Source: payloadString(r.Payload, "source"),
			Score:  r.Score,
		})
	}
	return hits, nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/collections", nil, nil)
	return err
}

// Count returns the number of points of a project, or of the whole
// collection when project is empty.
func (s *QdrantStore) Count(ctx context.Context, project string) (int, error) {
	req := map[string]any{"exact": true}
	if project != "" {
		cond := qdrantFieldCondition{Key: "project"}
		cond.Match.Value = project
		req["filter"] = qdrantFilter{Must: []qdrantFieldCondition{cond}}
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// do sends a JSON request and decodes a 2xx body into out. The returned status
// is 0 when the request never reached the server.
func (s *QdrantStore) do(ctx context.Context, method, path string, in any, out any) (int, error) {
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
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, types.NewError(types.ErrVectorIndex, "qdrant request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return resp.StatusCode, types.Errorf(types.ErrVectorIndex,
			"qdrant %s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(raw))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, types.NewError(types.ErrVectorIndex, "decode qdrant response").WithCause(err)
		}
	}
	return resp.StatusCode, nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
