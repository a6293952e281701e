package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDuplicateProject is returned when a name already exists, ignoring case.
	ErrDuplicateProject = errors.New("project already exists")
	// ErrInvalidProject is returned for an empty name or color.
	ErrInvalidProject = errors.New("project name and color are required")
)

// Project is one registry entry.
type Project struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Registry lists and creates projects.
type Registry interface {
	List(ctx context.Context) ([]Project, error)
	Create(ctx context.Context, p Project) error
}

// FileRegistry stores projects as a JSON array. A missing or unreadable file
// reads as an empty registry.
type FileRegistry struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileRegistry creates a registry backed by path.
func NewFileRegistry(path string, logger *zap.Logger) *FileRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRegistry{
		path:   path,
		logger: logger.With(zap.String("component", "project_registry")),
	}
}

// Path returns the backing file.
func (r *FileRegistry) Path() string {
	return r.path
}

func (r *FileRegistry) List(ctx context.Context) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(), nil
}

func (r *FileRegistry) Create(ctx context.Context, p Project) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Color = strings.TrimSpace(p.Color)
	if p.Name == "" || p.Color == "" {
		return ErrInvalidProject
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	projects := r.load()
	for _, existing := range projects {
		if strings.EqualFold(existing.Name, p.Name) {
			return ErrDuplicateProject
		}
	}
	projects = append(projects, p)

	if err := r.save(projects); err != nil {
		return err
	}
	r.logger.Info("project created", zap.String("project", p.Name))
	return nil
}

func (r *FileRegistry) load() []Project {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to read projects file", zap.String("path", r.path), zap.Error(err))
		}
		return []Project{}
	}

	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		r.logger.Warn("projects file is not valid JSON, treating as empty", zap.String("path", r.path), zap.Error(err))
		return []Project{}
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects
}

// save writes through a temp file and rename so readers never see a partial file.
func (r *FileRegistry) save(projects []Project) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}

	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal projects: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write projects: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close projects: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace projects file: %w", err)
	}
	return nil
}
