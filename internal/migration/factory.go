package migration

import (
	"fmt"

	"github.com/BaSui01/ragflow/config"
)

// NewMigratorFromConfig 使用检查点 DSN 创建迁移器，仅 postgres 驱动需要迁移
func NewMigratorFromConfig(cfg *config.Config) (*PostgresMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Checkpoint.Driver != config.CheckpointDriverPostgres {
		return nil, fmt.Errorf("migrations only apply to the postgres checkpoint driver, got %q", cfg.Checkpoint.Driver)
	}
	return NewMigratorFromURL(cfg.Checkpoint.DSN)
}

// NewMigratorFromURL 使用连接串创建迁移器
func NewMigratorFromURL(dsn string) (*PostgresMigrator, error) {
	return NewMigrator(Config{
		DatabaseURL: dsn,
		TableName:   DefaultTableName,
	})
}
