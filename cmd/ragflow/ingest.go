package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/database"
	"github.com/BaSui01/ragflow/internal/logging"
	"github.com/BaSui01/ragflow/memory"
)

// =============================================================================
// 📥 导入命令
// =============================================================================

// runIngest 离线导入文档目录，只构建向量化与索引组件
func runIngest(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "", "Document directory (default: projects.docs_dir)")
	project := fs.String("project", memory.DefaultProject, "Target project")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dir == "" {
		*dir = cfg.Projects.DocsDir
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *database.PoolManager
	if cfg.Vector.Driver == config.VectorDriverPgVector {
		db, err = database.Open(ctx, config.CheckpointDriverPostgres, cfg.Checkpoint.DSN,
			database.PoolConfigFrom(cfg.Database), logger)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	index, err := newVectorIndex(cfg, db, logger)
	if err != nil {
		return err
	}

	ingester := newIngester(cfg, newEmbedder(cfg.Embedding), index, logger)
	res, err := ingester.Ingest(ctx, *dir, *project)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	logger.Info("ingest complete",
		zap.String("project", res.Project),
		zap.Int("documents", res.Documents),
		zap.Int("chunks", res.Chunks),
		zap.Duration("duration", res.Duration),
	)
	fmt.Fprintf(stdout, "Ingested %d documents (%d chunks) into project %q in %s\n",
		res.Documents, res.Chunks, res.Project, res.Duration)
	return nil
}
