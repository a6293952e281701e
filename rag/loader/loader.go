package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/ragflow/rag"
	"go.uber.org/zap"
)

// DocumentLoader reads one source into documents.
type DocumentLoader interface {
	Load(ctx context.Context, source string) ([]rag.Document, error)
	// SupportedTypes returns the lowercase extensions handled, with the dot.
	SupportedTypes() []string
}

// LoaderRegistry routes Load calls by file extension.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader
	logger  *zap.Logger
}

// NewLoaderRegistry creates a registry with TextLoader registered.
func NewLoaderRegistry(logger *zap.Logger) *LoaderRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &LoaderRegistry{
		loaders: make(map[string]DocumentLoader),
		logger:  logger.With(zap.String("component", "doc_loader")),
	}
	text := NewTextLoader()
	for _, ext := range text.SupportedTypes() {
		r.loaders[ext] = text
	}
	return r
}

// Register adds or replaces the loader for ext (".pdf").
func (r *LoaderRegistry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

func (r *LoaderRegistry) lookup(source string) (DocumentLoader, string, bool) {
	ext := strings.ToLower(filepath.Ext(source))
	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()
	return l, ext, ok
}

// Load delegates to the loader registered for the source's extension.
func (r *LoaderRegistry) Load(ctx context.Context, source string) ([]rag.Document, error) {
	l, ext, ok := r.lookup(source)
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", source)
	}
	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}
	return l.Load(ctx, source)
}

// LoadDir walks root and loads every file with a registered extension in
// lexical order. Unreadable files are logged and skipped.
func (r *LoaderRegistry) LoadDir(ctx context.Context, root string) ([]rag.Document, error) {
	var docs []rag.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			r.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		l, _, ok := r.lookup(path)
		if !ok {
			return nil
		}
		loaded, err := l.Load(ctx, path)
		if err != nil {
			r.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", root, err)
	}

	r.logger.Debug("directory loaded", zap.String("root", root), zap.Int("documents", len(docs)))
	return docs, nil
}

// SupportedTypes returns all registered extensions, sorted.
func (r *LoaderRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
