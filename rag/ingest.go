package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/llm/retry"
	"github.com/BaSui01/ragflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirLoader reads every supported file under a directory.
type DirLoader interface {
	LoadDir(ctx context.Context, root string) ([]Document, error)
}

// DocumentEmbedder turns chunk texts into vectors, one per input, in order.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestConfig configures an Ingester.
type IngestConfig struct {
	Dimensions  int            `json:"dimensions" yaml:"dimensions"`
	BatchSize   int            `json:"batch_size" yaml:"batch_size"`
	Concurrency int            `json:"concurrency" yaml:"concurrency"`
	Chunking    ChunkingConfig `json:"chunking" yaml:"chunking"`
	Retry       retry.Policy   `json:"-" yaml:"-"`
}

// DefaultIngestConfig returns 1536-dimension points, batches of 64 and four
// concurrent embedding calls.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Dimensions:  1536,
		BatchSize:   64,
		Concurrency: 4,
		Chunking:    DefaultChunkingConfig(),
		Retry:       retry.DefaultPolicy(),
	}
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Project   string        `json:"project"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
}

// Ingester loads a directory, chunks it, embeds the chunks and upserts them
// into a VectorIndex tagged with a project.
type Ingester struct {
	loader   DirLoader
	embedder DocumentEmbedder
	index    VectorIndex
	cfg      IngestConfig
	retryer  *retry.Retryer
	logger   *zap.Logger
	newID    func() string
}

// NewIngester creates an Ingester.
func NewIngester(loader DirLoader, embedder DocumentEmbedder, index VectorIndex, cfg IngestConfig, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultIngestConfig()
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = def.Retry
	}
	logger = logger.With(zap.String("component", "ingester"))

	return &Ingester{
		loader:   loader,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		retryer:  retry.New(cfg.Retry, logger),
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Ingest runs the whole import for project. An empty project means "default".
func (in *Ingester) Ingest(ctx context.Context, dir, project string) (*IngestResult, error) {
	start := time.Now()
	project = strings.TrimSpace(project)
	if project == "" {
		project = "default"
	}
	logger := in.logger.With(zap.String("project", project), zap.String("dir", dir))

	if err := in.index.EnsureCollection(ctx, in.cfg.Dimensions); err != nil {
		return nil, err
	}

	docs, err := in.loader.LoadDir(ctx, dir)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "load documents").WithCause(err)
	}

	result := &IngestResult{Project: project, Documents: len(docs)}
	chunks := ChunkDocuments(docs, in.cfg.Chunking)
	if len(chunks) == 0 {
		result.Duration = time.Since(start)
		logger.Info("nothing to ingest")
		return result, nil
	}

	vectors, err := in.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(chunks))
	for i, c := range chunks {
		points[i] = Point{
			ID:      in.newID(),
			Vector:  vectors[i],
			Text:    c.Text,
			Source:  c.Source,
			Project: project,
		}
	}

	for lo := 0; lo < len(points); lo += in.cfg.BatchSize {
		batch := points[lo:min(lo+in.cfg.BatchSize, len(points))]
		if err := in.retryer.Do(ctx, func(ctx context.Context) error {
			return in.index.Upsert(ctx, batch)
		}); err != nil {
			return nil, err
		}
	}

	result.Chunks = len(points)
	result.Duration = time.Since(start)
	logger.Info("ingestion completed",
		zap.Int("documents", result.Documents),
		zap.Int("chunks", result.Chunks),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// embed fans batches out to the embedder with bounded concurrency and keeps
// the output aligned with chunks.
func (in *Ingester) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)

	for lo := 0; lo < len(chunks); lo += in.cfg.BatchSize {
		hi := min(lo+in.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Text)
		}

		g.Go(func() error {
			out, err := retry.Do(gctx, in.retryer, func(ctx context.Context) ([][]float32, error) {
				return in.embedder.EmbedDocuments(ctx, texts)
			})
			if err != nil {
				return err
			}
			if len(out) != len(texts) {
				return types.Errorf(types.ErrEmbedding, "embedder returned %d vectors for %d inputs", len(out), len(texts))
			}
			for i, v := range out {
				if len(v) != in.cfg.Dimensions {
					return types.Errorf(types.ErrEmbedding, "vector dimension %d, expected %d", len(v), in.cfg.Dimensions)
				}
				vectors[lo+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}
